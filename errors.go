package go_bridgeclient

import (
	"errors"
	"fmt"
)

// Standard Bridge Error Types
//
// These errors follow Go 1.13+ error wrapping conventions and can be
// checked using errors.Is() and errors.As(). All errors include context
// about the operation that failed and the underlying cause.
//
// Design rationale:
// - Use sentinel errors for common, expected error conditions
// - Use error types for errors that need additional context
// - All errors are safe for error wrapping with fmt.Errorf("%w", err)

// Sentinel errors for common bridge protocol failures
var (
	// ErrCancelled indicates the caller cancelled a pending operation, either
	// explicitly or by starting a newer navigation that superseded it.
	// Cancellation is terminal and never consumes a retry attempt.
	ErrCancelled = errors.New("bridge: operation cancelled")

	// ErrAuthExpired indicates the bearer credential was reported outdated
	// (401/403 with body code TOKEN_OUTDATED). The pipeline refreshes the
	// credential and retries once immediately; this sentinel surfaces only
	// when the attempt budget is exhausted during the refresh loop.
	ErrAuthExpired = errors.New("bridge: auth token outdated")

	// ErrAuthRejected indicates the relay rejected the credential with a
	// 401/403 that did not carry TOKEN_OUTDATED. Terminal; refreshing will
	// not help.
	ErrAuthRejected = errors.New("bridge: authentication rejected")

	// ErrDuplicateRequest indicates a navigation was suppressed because the
	// same URL is already in flight or was the last URL completed. Callers
	// pass force=true to bypass the guard.
	ErrDuplicateRequest = errors.New("bridge: duplicate request suppressed")

	// ErrNotInitialized indicates an operation was attempted on a zero-value
	// struct. Pipelines and crypto engines must be created through their
	// constructors.
	ErrNotInitialized = errors.New("bridge: not initialized (use constructor)")

	// ErrInvalidArgument indicates a nil or empty value was passed to a
	// public API method.
	ErrInvalidArgument = errors.New("bridge: invalid argument (nil or empty value)")

	// ErrChatClosed indicates a send or receive was attempted on a closed
	// chat channel.
	ErrChatClosed = errors.New("bridge: chat channel closed")
)

// CryptoError represents a failure inside the envelope cipher path: bad
// PKCS7 padding, malformed base64, wrong key/IV length, or a missing
// envelope field. Crypto errors are fatal to the call and never retried.
type CryptoError struct {
	Op  string // What operation failed (e.g. "decrypt envelope", "decode iv")
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("bridge: crypto %s failed: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError wraps an error that occurred during envelope encryption or
// decryption.
func NewCryptoError(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}

// TransportError represents a network-level failure (connection reset,
// timeout, DNS failure). Transport errors are temporary and retried up to
// the attempt budget.
type TransportError struct {
	URL string // Target URL of the failed attempt
	Err error  // Underlying error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge: transport failure for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports that transport failures may be retried.
func (e *TransportError) Temporary() bool {
	return true
}

// ServiceUnavailableError indicates the relay answered 503. This is a
// distinct, terminal condition: the relay is telling the client the service
// is disabled, not that the request failed transiently. Message carries the
// human-readable text from the response body when the relay supplied one.
type ServiceUnavailableError struct {
	Message string
}

func (e *ServiceUnavailableError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bridge: service unavailable: %s", e.Message)
	}
	return "bridge: service unavailable"
}

// ServerError represents a non-200 response that is neither an auth failure
// nor a 503. Retried up to the attempt budget, then surfaced with the last
// status and reason phrase.
type ServerError struct {
	StatusCode int
	Reason     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("bridge: server returned %d %s", e.StatusCode, e.Reason)
}

// Temporary reports that generic server errors may be retried.
func (e *ServerError) Temporary() bool {
	return true
}

// MaxAttemptsExceededError is returned when the attempt budget is
// exhausted. It wraps the last error observed.
type MaxAttemptsExceededError struct {
	Attempts int
	LastErr  error
}

func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("bridge: %d attempts exhausted: %v", e.Attempts, e.LastErr)
}

func (e *MaxAttemptsExceededError) Unwrap() error {
	return e.LastErr
}

// IsTemporary returns true if the error is temporary and the operation can
// be retried. Crypto, cancellation, and auth-rejection errors are never
// temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrAuthRejected) {
		return false
	}

	var ce *CryptoError
	if errors.As(err, &ce) {
		return false
	}

	type temporary interface {
		Temporary() bool
	}
	var te temporary
	if errors.As(err, &te) {
		return te.Temporary()
	}

	return false
}

// IsFatal returns true if the error is terminal for the whole operation:
// crypto failures, auth rejection, and service-unavailable conditions.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAuthRejected) {
		return true
	}

	var ce *CryptoError
	if errors.As(err, &ce) {
		return true
	}

	var se *ServiceUnavailableError
	return errors.As(err, &se)
}
