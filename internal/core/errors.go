package core

import "errors"

// Predefined errors returned by Tabula engine operations.
var (
	// ErrNoRows is returned when a query that expects a row returns no results.
	ErrNoRows = errors.New("no rows in result set")
	// ErrModelNotRegistered is returned when a model name is not present in the registry.
	ErrModelNotRegistered = errors.New("model not registered")
	// ErrUnknownRelation is returned when a relationship name is not defined on the target model.
	ErrUnknownRelation = errors.New("unknown relation")
	// ErrRecordNotPersisted is returned when update/delete is attempted on a record that does not exist.
	ErrRecordNotPersisted = errors.New("record does not exist in the database")
	// ErrRecordGone is returned when refreshing a record whose primary key has since disappeared.
	ErrRecordGone = errors.New("record no longer exists in the database")
	// ErrNoModel is returned when a record-level operation requires a registered model definition.
	ErrNoModel = errors.New("record is not bound to a registered model")
)

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
