// Package recovery defines how parse errors in tolerant mode are handled.
// Layers that can continue after a local failure consult a Strategy and act
// on the returned Action instead of deciding policy themselves.
package recovery

import "context"

// Strategy decides what to do about an error encountered at a location.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location identifies where in the input an error occurred.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

// Action is the strategy's verdict.
type Action int

const (
	// ActionFail aborts the current operation with the error.
	ActionFail Action = iota
	// ActionSkip drops the offending construct and continues.
	ActionSkip
	// ActionFix applies the caller's best-guess repair and continues.
	ActionFix
	// ActionWarn records the error and continues unchanged.
	ActionWarn
)
