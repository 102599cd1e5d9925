package port

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by fetch calls issued while the feed session
// is down. Callers treat it like any other fetch failure and retry on the
// next cycle.
var ErrNotConnected = errors.New("feed not connected")

// FetchError wraps a failed or timed-out feed request. Recovered by the
// calling loop's retry policy, never propagated past the loop boundary.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("feed fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("feed fetch failed for %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError wraps an unavailable persistence layer. The current cycle's
// write is skipped; the next cycle retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConnectionError marks the feed session unusable. It drives the connection
// monitor's state transition and is not surfaced elsewhere.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("feed connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
