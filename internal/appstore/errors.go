package appstore

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind is the semantic category of a non-zero verifyReceipt status.
type ErrorKind int

const (
	// ErrorKindNone is status 0, which is not an error.
	ErrorKindNone ErrorKind = iota
	ErrorKindInvalidJSONObject
	ErrorKindReceiptDataMalformedOrMissing
	ErrorKindReceiptCouldNotBeAuthenticated
	ErrorKindSharedSecretMismatch
	ErrorKindServerUnavailable
	// ErrorKindSubscriptionExpired is only returned for iOS 6 style
	// transaction receipts of auto-renewable subscriptions.
	ErrorKindSubscriptionExpired
	// ErrorKindSandboxReceiptSentToProduction is the only kind that triggers
	// the sandbox retry.
	ErrorKindSandboxReceiptSentToProduction
	ErrorKindProductionReceiptSentToSandbox
	// ErrorKindReceiptCouldNotBeAuthorized should be treated as if no purchase
	// was ever made.
	ErrorKindReceiptCouldNotBeAuthorized
	ErrorKindInternalDataAccessError
	ErrorKindUnknownError
)

// Classify maps a verifyReceipt status code to its ErrorKind.
func Classify(status int) ErrorKind {
	switch {
	case status == 0:
		return ErrorKindNone
	case status == 21000:
		return ErrorKindInvalidJSONObject
	case status == 21002:
		return ErrorKindReceiptDataMalformedOrMissing
	case status == 21003:
		return ErrorKindReceiptCouldNotBeAuthenticated
	case status == 21004:
		return ErrorKindSharedSecretMismatch
	case status == 21005:
		return ErrorKindServerUnavailable
	case status == 21006:
		return ErrorKindSubscriptionExpired
	case status == 21007:
		return ErrorKindSandboxReceiptSentToProduction
	case status == 21008:
		return ErrorKindProductionReceiptSentToSandbox
	case status == 21010:
		return ErrorKindReceiptCouldNotBeAuthorized
	case status >= 21100 && status <= 21199:
		return ErrorKindInternalDataAccessError
	default:
		return ErrorKindUnknownError
	}
}

var errorKindNames = map[ErrorKind]string{
	ErrorKindNone:                           "none",
	ErrorKindInvalidJSONObject:              "invalid_json_object",
	ErrorKindReceiptDataMalformedOrMissing:  "receipt_data_malformed_or_missing",
	ErrorKindReceiptCouldNotBeAuthenticated: "receipt_could_not_be_authenticated",
	ErrorKindSharedSecretMismatch:           "shared_secret_mismatch",
	ErrorKindServerUnavailable:              "server_unavailable",
	ErrorKindSubscriptionExpired:            "subscription_expired",
	ErrorKindSandboxReceiptSentToProduction: "sandbox_receipt_sent_to_production",
	ErrorKindProductionReceiptSentToSandbox: "production_receipt_sent_to_sandbox",
	ErrorKindReceiptCouldNotBeAuthorized:    "receipt_could_not_be_authorized",
	ErrorKindInternalDataAccessError:        "internal_data_access_error",
	ErrorKindUnknownError:                   "unknown_error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ErrEmptyReceipt is returned before any network call when the receipt
// payload is empty.
var ErrEmptyReceipt = errors.New("receipt data is empty")

// StatusError is a non-zero status answered by the verification endpoint.
type StatusError struct {
	Status      int
	Kind        ErrorKind
	Environment Environment
}

func newStatusError(status int, env Environment) *StatusError {
	return &StatusError{Status: status, Kind: Classify(status), Environment: env}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("app store %s verification failed with status %d (%s)", e.Environment, e.Status, e.Kind)
}

// TransportError is a failure to obtain a response body from the endpoint,
// including the per-attempt deadline elapsing.
type TransportError struct {
	Environment Environment
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("app store %s request failed: %v", e.Environment, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt failed because its deadline elapsed.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// DecodeError is a response body that could not be decoded. Field names the
// offending JSON key when one is known.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode app store response: %v", e.Err)
	}
	return fmt.Sprintf("decode app store response field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errMissingField = errors.New("required field is missing")

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Kind, true
	}
	return ErrorKindNone, false
}
