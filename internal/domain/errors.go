package domain

import (
	"fmt"
)

type ConfigurationErrorKind string

const (
	UnknownNetwork  ConfigurationErrorKind = "unknown network"
	UnknownContract ConfigurationErrorKind = "unknown contract"
	MalformedArgs   ConfigurationErrorKind = "malformed arguments"
	ArityMismatch   ConfigurationErrorKind = "constructor arity mismatch"
	MissingSigner   ConfigurationErrorKind = "missing signer"
)

type (
	// ConfigurationError is always fatal and never retried. Subject names the
	// offending network, contract or key.
	ConfigurationError struct {
		Kind    ConfigurationErrorKind
		Subject string
		Err     error
	}

	// SubmissionError means the creation transaction was rejected or reverted.
	SubmissionError struct {
		Contract ContractID
		TxHash   string
		Err      error
	}

	// ConfirmationTimeoutError means the transaction was sent but its fate is
	// unknown. The chain must be checked by hand before deploying again.
	ConfirmationTimeoutError struct {
		Contract ContractID
		TxHash   string
		Address  string
		Err      error
	}

	// VerificationError leaves the deployment intact; verification alone can
	// be retried.
	VerificationError struct {
		Contract ContractID
		Address  string
		Message  string
		Err      error
	}
)

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s '%s': %v", e.Kind, e.Subject, e.Err)
	}
	return fmt.Sprintf("configuration error: %s '%s'", e.Kind, e.Subject)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *SubmissionError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("submission of %s failed (tx %s): %v", e.Contract, e.TxHash, e.Err)
	}
	return fmt.Sprintf("submission of %s failed: %v", e.Contract, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("confirmation of %s timed out (tx %s, expected address %s): status is indeterminate, check the chain before retrying: %v",
		e.Contract, e.TxHash, e.Address, e.Err)
}

func (e *ConfirmationTimeoutError) Unwrap() error { return e.Err }

func (e *VerificationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("verification of %s at %s failed: %s", e.Contract, e.Address, msg)
}

func (e *VerificationError) Unwrap() error { return e.Err }
