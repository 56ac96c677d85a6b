package errors

import (
	"errors"
	"fmt"
	"reflect"

	"google.golang.org/grpc/codes"
)

// ConfigurationError reports an export configuration that cannot be executed.
// It is detected before any store or destination call is made.
type ConfigurationError struct {
	AppError
}

func NewConfigurationError(id, message string) error {
	return &ConfigurationError{AppError: AppError{id: id, message: message, code: codes.FailedPrecondition}}
}

func (e *ConfigurationError) Unwrap() error { return nil }

// RootCause follows the Unwrap chain down to the deepest error.
func RootCause(err error) error {
	if err == nil {
		return nil
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// IsDomain reports whether err is one of the application's own error types,
// whose message is meant to be shown to users as is.
func IsDomain(err error) bool {
	switch err.(type) {
	case *AppError, *ConfigurationError, *AuthorizationError,
		*DBError, *DBNotFoundError, *DBUniqueViolationError, *DBForeignKeyViolationError, *DBInternalError:
		return true
	}
	return false
}

// FailureMessage builds the user facing message for a failed job from the root cause of err.
// Domain errors keep their message, anything else renders as "TypeName: message".
func FailureMessage(err error) string {
	root := RootCause(err)
	if root == nil {
		return ""
	}
	if IsDomain(root) {
		return root.Error()
	}
	name := typeName(root)
	msg := root.Error()
	if name == "" {
		return msg
	}
	if msg == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, msg)
}

// anonymous stdlib error types carry no information beyond their text
var anonymousErrorTypes = map[string]struct{}{
	"errors.errorString": {},
	"fmt.wrapError":      {},
	"fmt.wrapErrors":     {},
	"errors.joinError":   {},
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	full := t.String()
	if _, ok := anonymousErrorTypes[full]; ok {
		return ""
	}
	return t.Name()
}
