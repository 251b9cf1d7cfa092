// Copyright 2025 DeFlow
//
// Package apperrors defines the tagged error taxonomy shared by every
// DeFlow component so the CLI/HTTP surface can render a uniform
// Result<T, ErrorKind> envelope instead of ad-hoc string errors.

package apperrors

import (
	"errors"
	"fmt"
)

// Kind tags an error with the taxonomy category from the error handling design.
type Kind string

const (
	// Validation
	KindMissingParameter       Kind = "MissingParameter"
	KindInvalidParameterType   Kind = "InvalidParameterType"
	KindInvalidNodeConfig      Kind = "InvalidNodeConfiguration"
	KindInvalidConnection      Kind = "InvalidConnection"
	KindCycleDetected          Kind = "CycleDetected"
	KindInvalidTrigger         Kind = "InvalidTrigger"
	KindDuplicateNodeID        Kind = "DuplicateNodeId"

	// Authorization
	KindNoPermissions            Kind = "NoPermissions"
	KindPermissionsExpired       Kind = "PermissionsExpired"
	KindChainNotAllowed          Kind = "ChainNotAllowed"
	KindStrategyTypeNotAllowed   Kind = "StrategyTypeNotAllowed"
	KindDailyLimitExceeded       Kind = "DailyLimitExceeded"
	KindSignatureRequired        Kind = "SignatureRequired"
	KindInvalidSignature         Kind = "InvalidSignature"
	KindAuthorizationExpired     Kind = "AuthorizationExpired"
	KindAuthorizationAlreadyUsed Kind = "AuthorizationAlreadyUsed"

	// Execution
	KindNetworkError        Kind = "NetworkError"
	KindTimeout             Kind = "Timeout"
	KindChainRPCError       Kind = "ChainRpcError"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindInsufficientCycles  Kind = "InsufficientCycles"
	KindGasEstimationFailed Kind = "GasEstimationFailed"
	KindTransactionFailed   Kind = "TransactionFailed"
	KindSerializationError  Kind = "SerializationError"

	// Chain-specific
	KindInvalidAddress              Kind = "InvalidAddress"
	KindInvalidBlockhash             Kind = "InvalidBlockhash"
	KindInsufficientRentExemption     Kind = "InsufficientRentExemption"
	KindComputeBudgetExceeded         Kind = "ComputeBudgetExceeded"
	KindUTXOInsufficientFunds         Kind = "UTXOInsufficientFunds"

	// Pool/Treasury
	KindArithmeticOverflow   Kind = "ArithmeticOverflow"
	KindPhaseBlocked         Kind = "PhaseBlocked"
	KindBootstrapIncomplete  Kind = "BootstrapIncomplete"
	KindInsufficientReserves Kind = "InsufficientReserves"
	KindUnauthorizedTeamMember Kind = "UnauthorizedTeamMember"
	KindNoEarnings           Kind = "NoEarnings"

	// Risk
	KindRiskLimitExceeded     Kind = "RiskLimitExceeded"
	KindEmergencyStopTriggered Kind = "EmergencyStopTriggered"
	KindConcentrationExceeded  Kind = "ConcentrationExceeded"
	KindLiquidityRiskTooHigh   Kind = "LiquidityRiskTooHigh"

	// Storage
	KindOversizeValue Kind = "OversizeValue"
	KindNotFound      Kind = "NotFound"
)

// Error is a tagged error carrying its taxonomy Kind plus an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs a tagged Error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs a tagged Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the Cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether the taxonomy says this error class should be
// retried by the node's RetryPolicy (spec §7: NetworkError and Timeout only).
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindNetworkError || kind == KindTimeout
}

// InsufficientBalanceDetail carries the structured payload for
// InsufficientBalance{required, available}.
type InsufficientBalanceDetail struct {
	Required  string
	Available string
}

// NewInsufficientBalance builds a tagged InsufficientBalance error with its payload
// embedded in the message, matching the {required, available} shape from spec §7.
func NewInsufficientBalance(required, available string) *Error {
	return Newf(KindInsufficientBalance, "required=%s available=%s", required, available)
}
