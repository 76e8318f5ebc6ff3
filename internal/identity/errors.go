package identity

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrUserExists is returned when the username is already taken in the user pool
var ErrUserExists = errors.New("user already exists")

// APIError wraps a Cognito failure with the API error code, when one is known
type APIError struct {
	Op    string
	Code  string
	Cause error
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

// classify maps Cognito errors onto the errors callers branch on
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var api smithy.APIError
	if errors.As(err, &api) {
		if api.ErrorCode() == "UsernameExistsException" {
			return fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return &APIError{Op: op, Code: api.ErrorCode(), Cause: err}
	}
	return &APIError{Op: op, Cause: err}
}
