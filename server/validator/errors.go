package validator

import (
	"errors"
	"fmt"
)

// Code identifies why a gift message was rejected
type Code string

const (
	CodeTooLong            Code = "too_long"
	CodeUnsafeContent      Code = "unsafe_content"
	CodeCustomRuleRejected Code = "custom_rule_rejected"
)

// Sentinels for errors.Is checks
var (
	ErrTooLong            = errors.New("gift message too long")
	ErrUnsafeContent      = errors.New("gift message contains unsafe content")
	ErrCustomRuleRejected = errors.New("gift message rejected")
)

// ValidationError is a user input rejection. Message is safe to show to the shopper.
type ValidationError struct {
	Code    Code
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the sentinel for the error code.
func (e *ValidationError) Is(target error) bool {
	switch e.Code {
	case CodeTooLong:
		return target == ErrTooLong
	case CodeUnsafeContent:
		return target == ErrUnsafeContent
	case CodeCustomRuleRejected:
		return target == ErrCustomRuleRejected
	}
	return false
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}
