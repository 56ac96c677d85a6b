package errors

import "fmt"

// DBError describes a failed store operation.
type DBError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

func NewDBError(op, message string) *DBError {
	return &DBError{Op: op, Message: message}
}

func (e *DBError) Error() string {
	return fmt.Sprintf("store.%s: %s", e.Op, e.Message)
}

type DBNotFoundError struct {
	DBError
}

func NewDBNotFoundError(op, message string) error {
	return &DBNotFoundError{DBError: *NewDBError(op, message)}
}

type DBUniqueViolationError struct {
	DBError
	Column string
}

type DBForeignKeyViolationError struct {
	DBError
	ForeignKeyTable string
}

// DBInternalError wraps a driver error. The driver error stays reachable through Unwrap.
type DBInternalError struct {
	DBError
	cause error
}

func NewDBInternalError(op string, cause error) error {
	msg := "internal error"
	if cause != nil {
		msg = cause.Error()
	}
	return &DBInternalError{DBError: *NewDBError(op, msg), cause: cause}
}

func (e *DBInternalError) Unwrap() error { return e.cause }
