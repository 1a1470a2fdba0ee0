package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("payment_not_found")
	ErrInvalidID              = errors.New("invalid_payment_id")
	ErrInvalidTransaction     = errors.New("invalid_transaction_id")
	ErrInvalidMethod          = errors.New("invalid_payment_method")
	ErrMethodUnavailable      = errors.New("payment_method_unavailable")
	ErrGatewayMismatch        = errors.New("gateway_kind_mismatch")
	ErrReferenceRequired      = errors.New("gateway_reference_required")
	ErrReferenceMismatch      = errors.New("gateway_reference_mismatch")
	ErrAlreadyEnrolled        = errors.New("already_enrolled")
	ErrCheckoutInProgress     = errors.New("checkout_in_progress")
	ErrTransactionIDExhausted = errors.New("transaction_id_exhausted")
	ErrInvalidRefundReason    = errors.New("invalid_refund_reason")

	ErrInvalidState = errors.New("invalid_state")

	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidConfig         = errors.New("invalid_gateway_config")
)

// StateError rejects an operation the payment's current status does not allow.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a %s payment", e.Op, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func NewStateError(op string, status Status) error {
	return &StateError{Op: op, Status: status}
}

// GatewayError wraps a failed or unexpected call to an external gateway.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func NewGatewayError(gateway, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Gateway: gateway, Op: op, Err: err}
}

func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
