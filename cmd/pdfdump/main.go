package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/midbel/hexdump"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/filters"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/parser"
)

type options struct {
	pdfPath  string
	password string
	strict   bool
	bodies   bool
	decode   bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfdump: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfdump: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfdump [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.password, "password", "", "document password")
	flag.BoolVar(&opts.strict, "strict", false, "fail on structural errors instead of repairing")
	flag.BoolVar(&opts.bodies, "b", false, "hexdump stream bodies")
	flag.BoolVar(&opts.decode, "d", false, "decode stream bodies through their filter chain")
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

	ctx := context.Background()
	cfg := parser.DefaultConfig()
	cfg.Strict = opts.strict
	cfg.Password = opts.password
	doc, err := parser.NewDocumentParser(cfg).Parse(ctx, device.New(f, info.Size()))
	if err != nil {
		return err
	}

	for _, ref := range doc.Store.Refs() {
		obj, _ := doc.Store.Get(ref)
		fmt.Printf("%d %d obj", ref.Num, ref.Gen)
		if doc.Store.IsCompressedStream(ref.Num) {
			fmt.Printf("  %% object stream container")
		}
		fmt.Println()
		if s, ok := obj.Value.(*raw.StreamObj); ok {
			printValue(s.Dict)
			fmt.Printf("stream (%d bytes)\n", s.Length())
			if opts.bodies {
				if err := printBody(ctx, cfg.Filters, s, opts.decode); err != nil {
					fmt.Printf("  body unreadable: %v\n", err)
				}
			}
		} else {
			printValue(obj.Value)
		}
		fmt.Println()
	}

	fmt.Println("trailer")
	printValue(doc.Trailer)
	return nil
}

func printValue(v raw.Object) {
	var sb strings.Builder
	if err := raw.WriteValue(&sb, v); err != nil {
		fmt.Printf("  unprintable: %v\n", err)
		return
	}
	fmt.Println(sb.String())
}

func printBody(ctx context.Context, pipeline *filters.Pipeline, s *raw.StreamObj, decode bool) error {
	var body []byte
	var err error
	if decode {
		body, err = pipeline.DecodeStream(ctx, s)
	} else {
		body, err = s.RawData()
	}
	if err != nil {
		return err
	}
	fmt.Println(hexdump.Dump(body))
	return nil
}
