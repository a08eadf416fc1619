package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of a rejected ledger call
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeAuthorization ErrorType = "authorization"
	ErrorTypeInvariant     ErrorType = "invariant"
	ErrorTypeInternal      ErrorType = "internal"
)

// ProvenanceError is a typed rejection. Every chaincode failure is one of these.
type ProvenanceError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ProvenanceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ProvenanceError) Unwrap() error {
	return e.Cause
}

// Is matches two provenance errors by code, so callers can use errors.Is
// against the sentinel codes below.
func (e *ProvenanceError) Is(target error) bool {
	t, ok := target.(*ProvenanceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With attaches a detail to the error and returns it
func (e *ProvenanceError) With(key string, value interface{}) *ProvenanceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a new input validation error
func NewValidationError(code, message string) *ProvenanceError {
	return &ProvenanceError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *ProvenanceError {
	return &ProvenanceError{Type: ErrorTypeNotFound, Code: code, Message: message}
}

// NewConflictError creates a new state conflict error
func NewConflictError(code, message string) *ProvenanceError {
	return &ProvenanceError{Type: ErrorTypeConflict, Code: code, Message: message}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(code, message string) *ProvenanceError {
	return &ProvenanceError{Type: ErrorTypeAuthorization, Code: code, Message: message}
}

// NewInvariantError creates a new anti-lockout / invariant error
func NewInvariantError(code, message string) *ProvenanceError {
	return &ProvenanceError{Type: ErrorTypeInvariant, Code: code, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *ProvenanceError {
	return &ProvenanceError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// Error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeNotInitialized     = "REGISTRY_NOT_INITIALIZED"
	ErrCodeAlreadyInitialized = "REGISTRY_ALREADY_INITIALIZED"
	ErrCodeNotAdmin           = "NOT_REGISTRY_ADMIN"
	ErrCodeWalletNotFound     = "WALLET_NOT_FOUND"
	ErrCodeWalletExists       = "WALLET_ALREADY_REGISTERED"
	ErrCodeWalletState        = "WALLET_STATE_UNCHANGED"
	ErrCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	ErrCodeStatusUnchanged    = "IDENTITY_STATUS_UNCHANGED"
	ErrCodeNotActiveMember    = "NOT_ACTIVE_MEMBER"
	ErrCodeRecordInitialized  = "RECORD_ALREADY_INITIALIZED"
	ErrCodeRoleNotFound       = "ROLE_NOT_FOUND"
	ErrCodeRoleExists         = "ROLE_ALREADY_ACTIVE"
	ErrCodeRoleUnchanged      = "ROLE_UNCHANGED"
	ErrCodeRoleForbidden      = "ROLE_FORBIDDEN"
	ErrCodeOwnerImmutable     = "OWNER_IMMUTABLE"
	ErrCodeAntiLockout        = "ANTI_LOCKOUT"
	ErrCodePermissionNotFound = "PERMISSION_NOT_FOUND"
	ErrCodePermissionExists   = "PERMISSION_ALREADY_EXISTS"
	ErrCodePermissionRevoked  = "PERMISSION_ALREADY_REVOKED"
	ErrCodeSelfShare          = "SELF_SHARE"
	ErrCodeNotSharer          = "NOT_SHARER"
	ErrCodeAnchorNotFound     = "ANCHOR_NOT_FOUND"
	ErrCodeAnchorExists       = "ANCHOR_ALREADY_EXISTS"
	ErrCodeAlreadyReviewed    = "ALREADY_REVIEWED"
	ErrCodeReviewNotFound     = "REVIEW_NOT_FOUND"
	ErrCodeNotDispute         = "REVIEW_NOT_DISPUTE"
	ErrCodeSelfReaction       = "SELF_REACTION"
	ErrCodeAlreadyReacted     = "ALREADY_REACTED"
)

var knownCodes = map[string]ErrorType{
	ErrCodeInvalidInput:       ErrorTypeValidation,
	ErrCodeInternalError:      ErrorTypeInternal,
	ErrCodeNotInitialized:     ErrorTypeNotFound,
	ErrCodeAlreadyInitialized: ErrorTypeConflict,
	ErrCodeNotAdmin:           ErrorTypeAuthorization,
	ErrCodeWalletNotFound:     ErrorTypeNotFound,
	ErrCodeWalletExists:       ErrorTypeConflict,
	ErrCodeWalletState:        ErrorTypeConflict,
	ErrCodeIdentityNotFound:   ErrorTypeNotFound,
	ErrCodeStatusUnchanged:    ErrorTypeConflict,
	ErrCodeNotActiveMember:    ErrorTypeAuthorization,
	ErrCodeRecordInitialized:  ErrorTypeConflict,
	ErrCodeRoleNotFound:       ErrorTypeNotFound,
	ErrCodeRoleExists:         ErrorTypeConflict,
	ErrCodeRoleUnchanged:      ErrorTypeConflict,
	ErrCodeRoleForbidden:      ErrorTypeAuthorization,
	ErrCodeOwnerImmutable:     ErrorTypeAuthorization,
	ErrCodeAntiLockout:        ErrorTypeInvariant,
	ErrCodePermissionNotFound: ErrorTypeNotFound,
	ErrCodePermissionExists:   ErrorTypeConflict,
	ErrCodePermissionRevoked:  ErrorTypeConflict,
	ErrCodeSelfShare:          ErrorTypeValidation,
	ErrCodeNotSharer:          ErrorTypeAuthorization,
	ErrCodeAnchorNotFound:     ErrorTypeNotFound,
	ErrCodeAnchorExists:       ErrorTypeConflict,
	ErrCodeAlreadyReviewed:    ErrorTypeConflict,
	ErrCodeReviewNotFound:     ErrorTypeNotFound,
	ErrCodeNotDispute:         ErrorTypeConflict,
	ErrCodeSelfReaction:       ErrorTypeValidation,
	ErrCodeAlreadyReacted:     ErrorTypeConflict,
}

// Sentinel errors usable with errors.Is
var (
	ErrNotAdmin        = &ProvenanceError{Code: ErrCodeNotAdmin}
	ErrAntiLockout     = &ProvenanceError{Code: ErrCodeAntiLockout}
	ErrRoleForbidden   = &ProvenanceError{Code: ErrCodeRoleForbidden}
	ErrOwnerImmutable  = &ProvenanceError{Code: ErrCodeOwnerImmutable}
	ErrAlreadyReviewed = &ProvenanceError{Code: ErrCodeAlreadyReviewed}
	ErrAnchorExists    = &ProvenanceError{Code: ErrCodeAnchorExists}
)

// ErrorTypeOf returns the category of err, or internal when err is not typed.
func ErrorTypeOf(err error) ErrorType {
	var pe *ProvenanceError
	if errors.As(err, &pe) && pe.Type != "" {
		return pe.Type
	}
	return ErrorTypeInternal
}

// ParseLedgerError recovers a typed error from the message a Fabric peer
// returns for a rejected transaction. Peers prepend their own context, so the
// code is searched for anywhere in the message.
func ParseLedgerError(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProvenanceError
	if errors.As(err, &pe) {
		return err
	}

	msg := err.Error()
	best, bestIdx := "", -1
	for code := range knownCodes {
		idx := strings.Index(msg, code+": ")
		if idx < 0 || len(code) <= len(best) {
			continue
		}
		best, bestIdx = code, idx
	}
	if best == "" {
		return NewInternalError(ErrCodeInternalError, "ledger call failed", err)
	}
	return &ProvenanceError{
		Type:    knownCodes[best],
		Code:    best,
		Message: strings.TrimSpace(msg[bestIdx+len(best)+2:]),
		Cause:   err,
	}
}
