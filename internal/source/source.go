// Package source provides the event sources that tell the relay when a
// stimulation is wanted.
//
// Every source compares incoming records against a case-sensitive label
// after trimming surrounding whitespace. Records that don't match are
// dropped silently.
package source

import (
	"context"
	"errors"
	"strings"
)

// ErrConnection is returned (wrapped) by Connect when the transport
// cannot be established. It is fatal: the relay never starts.
var ErrConnection = errors.New("source: connection failed")

// Source produces trigger signals.
type Source interface {
	// Connect performs any setup needed before triggers can be observed.
	Connect(ctx context.Context) error

	// WaitForTrigger blocks until a qualifying event arrives (true) or the
	// transport ends in an orderly way (false). After false the caller must
	// not call it again. Cancelling ctx is reported as an orderly end.
	WaitForTrigger(ctx context.Context) (bool, error)

	// Close releases the transport.
	Close() error

	// String describes the source for logs and the status page.
	String() string
}

// Match reports whether record, trimmed of surrounding whitespace, equals
// label exactly.
func Match(record, label string) bool {
	return strings.TrimSpace(record) == label
}
