// Package errors provides the error taxonomy for tcpsink.
//
// Every failure a session can observe falls into one of four kinds:
// a clean end-of-stream, an abort we induced ourselves (idle timeout or
// shutdown closed the socket), a genuine transport error, or a
// filesystem error while persisting data.  The structured types carry
// enough context (operation, address or path) for a useful log line.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrIdleTimeout   = errors.New("idle timeout")
	ErrShutdown      = errors.New("server shutting down")
	ErrSessionClosed = errors.New("session is closed")
	ErrSinkClosed    = errors.New("file sink is closed")
)

// Kind classifies a session-terminating error.
type Kind int

const (
	KindNone       Kind = iota // no error
	KindEOF                    // peer closed the stream
	KindAborted                // socket closed by us (timeout, shutdown)
	KindTransport              // unexpected network failure
	KindFilesystem             // directory or file could not be written
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindEOF:
		return "eof"
	case KindAborted:
		return "aborted"
	case KindTransport:
		return "transport"
	case KindFilesystem:
		return "filesystem"
	default:
		return "unknown"
	}
}

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FSError represents a failure creating, writing, syncing or closing
// an output directory or file.
type FSError struct {
	Op   string // "mkdir", "create", "write", "sync", "close"
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapFS creates an FSError.  It returns nil for a nil err.
func WrapFS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FSError{Op: op, Path: path, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// Classify maps err onto the session error taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsFilesystem(err):
		return KindFilesystem
	case errors.Is(err, io.EOF):
		return KindEOF
	case IsInducedAbort(err):
		return KindAborted
	default:
		return KindTransport
	}
}

// IsFilesystem reports whether err originated while persisting data.
func IsFilesystem(err error) bool {
	var fe *FSError
	return errors.As(err, &fe)
}

// IsInducedAbort reports whether err is the expected result of our own
// code closing the socket: reads pending on a closed net.Conn fail with
// net.ErrClosed (or io.ErrClosedPipe for in-memory pipes).
func IsInducedAbort(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIdleTimeout) || errors.Is(err, ErrShutdown) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.  Accept
// loops see ECONNABORTED, EMFILE and friends as transient conditions.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	if errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use tcpsink/internal/errors as a drop-in
// replacement for the standard library in common operations.

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
