package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/parser"
)

type options struct {
	pdfPath  string
	password string
	strict   bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfinfo [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.password, "password", "", "document password")
	flag.BoolVar(&opts.strict, "strict", false, "fail on structural errors instead of repairing")
	flag.Parse()
	if flag.NArg() != 1 {
		return opts, fmt.Errorf("exactly one input file expected")
	}
	opts.pdfPath = flag.Arg(0)
	return opts, nil
}

func run(opts options) error {
	f, err := os.Open(opts.pdfPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	cfg := parser.DefaultConfig()
	cfg.Strict = opts.strict
	cfg.Password = opts.password
	cfg.LoadOnDemand = true
	doc, err := parser.NewDocumentParser(cfg).Parse(context.Background(), device.New(f, info.Size()))
	if err != nil {
		return err
	}

	fmt.Printf("Version:             %s\n", doc.Version)
	fmt.Printf("Objects:             %d\n", doc.Store.Len())
	fmt.Printf("Free slots:          %d\n", len(doc.Store.FreeRefs()))
	fmt.Printf("Incremental updates: %d\n", doc.IncrementalUpdates)
	fmt.Printf("XRef streams:        %v\n", doc.HasXRefStreams)
	fmt.Printf("Encrypted:           %v\n", doc.Encrypted)
	if doc.Encrypted {
		p := doc.Permissions
		fmt.Printf("Permissions:         print=%v modify=%v copy=%v\n", p.Print, p.Modify, p.Copy)
	}
	fmt.Printf("Trailer:\n")
	for _, key := range doc.Trailer.Keys() {
		v, _ := doc.Trailer.Get(key)
		fmt.Printf("  /%s %s\n", key.Value(), summarize(v))
	}
	return nil
}

func summarize(v raw.Object) string {
	switch o := v.(type) {
	case raw.Number:
		if o.IsInteger() {
			return fmt.Sprintf("%d", o.Int())
		}
		return fmt.Sprintf("%g", o.Float())
	case raw.Reference:
		return o.Ref().String()
	case raw.Name:
		return "/" + o.Value()
	case *raw.ArrayObj:
		return fmt.Sprintf("[%d items]", o.Len())
	case *raw.DictObj:
		return fmt.Sprintf("<<%d keys>>", o.Len())
	}
	return v.Type()
}
