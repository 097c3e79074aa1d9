package pgq

import (
	"errors"
	"fmt"
)

/*
Error codes. You probably shouldn't use this directly; instead, use the `Err`
variables with `errors.Is`.
*/
type ErrCode string

const (
	ErrCodeUnknown             ErrCode = ""
	ErrCodeInvalidInput        ErrCode = "InvalidInput"
	ErrCodeUnknownField        ErrCode = "UnknownField"
	ErrCodeNonUniqueAllow      ErrCode = "NonUniqueAllow"
	ErrCodeMissingPredicate    ErrCode = "MissingPredicate"
	ErrCodeMissingArgument     ErrCode = "MissingArgument"
	ErrCodeUnexpectedParameter ErrCode = "UnexpectedParameter"
	ErrCodeUnusedArgument      ErrCode = "UnusedArgument"
	ErrCodeOrdinalOutOfBounds  ErrCode = "OrdinalOutOfBounds"
	ErrCodeUndefinedRef        ErrCode = "UndefinedRef"
	ErrCodeDuplicateStep       ErrCode = "DuplicateStep"
	ErrCodeEmptyChain          ErrCode = "EmptyChain"
	ErrCodeChainBuilt          ErrCode = "ChainBuilt"
	ErrCodeUnparseable         ErrCode = "Unparseable"
	ErrCodeInternal            ErrCode = "Internal"
)

/*
Use blank error variables to detect error types:

	if errors.Is(err, pgq.ErrUnknownField) {
		// Handle specific error.
	}

Note that errors returned by this package can't be compared via `==` because
they may include additional details about the circumstances. When compared by
`errors.Is`, they compare `.Cause` and fall back on `.Code`.
*/
var (
	ErrInvalidInput        = Err{Code: ErrCodeInvalidInput, Cause: errors.New(`invalid input`)}
	ErrUnknownField        = Err{Code: ErrCodeUnknownField, Cause: errors.New(`unknown field`)}
	ErrNonUniqueAllow      = Err{Code: ErrCodeNonUniqueAllow, Cause: errors.New(`non-unique allow-list`)}
	ErrMissingPredicate    = Err{Code: ErrCodeMissingPredicate, Cause: errors.New(`update without predicate`)}
	ErrMissingArgument     = Err{Code: ErrCodeMissingArgument, Cause: errors.New(`missing argument`)}
	ErrUnexpectedParameter = Err{Code: ErrCodeUnexpectedParameter, Cause: errors.New(`unexpected parameter`)}
	ErrUnusedArgument      = Err{Code: ErrCodeUnusedArgument, Cause: errors.New(`unused argument`)}
	ErrOrdinalOutOfBounds  = Err{Code: ErrCodeOrdinalOutOfBounds, Cause: errors.New(`ordinal parameter exceeds arguments`)}
	ErrUndefinedRef        = Err{Code: ErrCodeUndefinedRef, Cause: errors.New(`undefined chain reference`)}
	ErrDuplicateStep       = Err{Code: ErrCodeDuplicateStep, Cause: errors.New(`duplicate chain step`)}
	ErrEmptyChain          = Err{Code: ErrCodeEmptyChain, Cause: errors.New(`empty chain`)}
	ErrChainBuilt          = Err{Code: ErrCodeChainBuilt, Cause: errors.New(`chain already built`)}
	ErrUnparseable         = Err{Code: ErrCodeUnparseable, Cause: errors.New(`unparseable statement shape`)}
	ErrInternal            = Err{Code: ErrCodeInternal, Cause: errors.New(`internal error`)}
)

// Type of errors returned by this package.
type Err struct {
	Code  ErrCode
	While string
	Cause error
}

// Implement `error`.
func (self Err) Error() string {
	if self == (Err{}) {
		return ""
	}
	msg := `[pgq]`
	if self.Code != ErrCodeUnknown {
		msg += fmt.Sprintf(` %s`, self.Code)
	}
	if self.While != "" {
		msg += fmt.Sprintf(` while %v`, self.While)
	}
	if self.Cause != nil {
		msg += `: ` + self.Cause.Error()
	}
	return msg
}

// Implement a hidden interface in "errors".
func (self Err) Is(other error) bool {
	if self.Cause != nil && errors.Is(self.Cause, other) {
		return true
	}
	err, ok := other.(Err)
	return ok && err.Code == self.Code
}

// Implement a hidden interface in "errors".
func (self Err) Unwrap() error {
	return self.Cause
}

/*
True for errors raised while validating caller input, before any SQL is built:
disallowed or unknown columns, a non-unique allow-list, an update without a
predicate, malformed filter values.
*/
func (self Err) IsValidation() bool {
	switch self.Code {
	case ErrCodeInvalidInput, ErrCodeUnknownField, ErrCodeNonUniqueAllow, ErrCodeMissingPredicate:
		return true
	default:
		return false
	}
}

// True for errors raised while composing a `Chain`.
func (self Err) IsCompose() bool {
	switch self.Code {
	case ErrCodeUndefinedRef, ErrCodeDuplicateStep, ErrCodeEmptyChain, ErrCodeChainBuilt, ErrCodeUnparseable:
		return true
	default:
		return false
	}
}

// Shortcut for `errors.As` + `Err.IsValidation`.
func IsValidation(err error) bool {
	var val Err
	return errors.As(err, &val) && val.IsValidation()
}

// Shortcut for `errors.As` + `Err.IsCompose`.
func IsCompose(err error) bool {
	var val Err
	return errors.As(err, &val) && val.IsCompose()
}

func (self Err) while(while string) Err {
	self.While = while
	return self
}

func (self Err) because(cause error) Err {
	self.Cause = cause
	return self
}

func (self Err) becausef(pattern string, args ...interface{}) Err {
	return self.because(fmt.Errorf(pattern, args...))
}
