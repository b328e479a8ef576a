package flaunch

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrActionInFlight is returned when a mutating action is triggered while
// another one is still pending. The second trigger is rejected locally,
// never queued.
var ErrActionInFlight = errors.New("another action is in flight")

// ValidationError is a locally rejected request. Nothing was sent to the
// ledger and the user may correct the input and retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError creates a ValidationError naming the violated constraint
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError marks sale state inconsistent enough that no mutating
// action should be attempted for the session. Surfaced to the user as
// "try again later".
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// TimeoutError reports a mutating call that did not confirm within the
// deadline. The underlying transaction may still land; the caller should
// refresh to discover the true outcome rather than blindly retry.
type TimeoutError struct {
	Action string
	Handle TxHandle
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not confirm in time handle=%s", e.Action, e.Handle)
}

// Unresolved reports that the outcome of the action is unknown, as opposed
// to a confirmed failure.
func (e *TimeoutError) Unresolved() bool {
	return true
}

// NetworkError wraps a transport-level failure talking to a collaborator.
type NetworkError struct {
	Action string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RejectedError is a protocol-level rejection reported by the ledger after
// the transaction was processed.
type RejectedError struct {
	Code   string
	reason string
}

// NewRejectedError maps a ledger rejection code to a user-facing error.
// Unknown codes get a generic message.
func NewRejectedError(code string) *RejectedError {
	return &RejectedError{Code: code, reason: rejectionReason(code)}
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return e.reason
	}
	return fmt.Sprintf("%s (code %s)", e.reason, e.Code)
}

// Known ledger rejection codes. The hex forms appear in raw transaction
// logs, the decimal forms in structured gateway responses.
func rejectionReason(code string) string {
	switch code {
	case "0x137", "311":
		return "sold out"
	case "312":
		return "minting period has not started yet"
	case "0x135":
		return "insufficient on-chain funds"
	}
	return "rejected by ledger"
}
