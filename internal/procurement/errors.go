package procurement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("procurement: validation failed")
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("procurement: invalid state")
	// ErrReference indicates an identifier that does not resolve.
	ErrReference = errors.New("procurement: unknown reference")
)

// Error carries the failing entity and a readable reason. It unwraps to one of
// ErrValidation, ErrInvalidState or ErrReference.
type Error struct {
	Kind   error
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func validationErr(entity, field, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func stateErr(entity, id, format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Entity: entity, ID: id, Reason: fmt.Sprintf(format, args...)}
}

func referenceErr(entity, id string) error {
	return &Error{Kind: ErrReference, Entity: entity, ID: id, Reason: "not found"}
}

// IsReference reports whether err is an unknown-identifier failure for entity.
func IsReference(err error, entity string) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return errors.Is(perr.Kind, ErrReference) && perr.Entity == entity
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// checkInput runs struct tag validation and converts the first field failure.
func checkInput(entity string, input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return validationErr(entity, fe.Namespace(), "failed %s", fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
