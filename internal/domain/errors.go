package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращают промахи поиска. Чат превращает его в
	// шаблонный ответ; для вызывающего это не сбой.
	ErrNotFound = errors.New("not found")

	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
)

// InvalidInputError: ошибка вызывающего. Не повторяется и дает
// ответ класса 400.
type InvalidInputError struct {
	Field string
	Err   error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func NewInvalidInput(field string, err error) error {
	return &InvalidInputError{Field: field, Err: err}
}

// IsInvalidInput: в err есть InvalidInputError.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}
