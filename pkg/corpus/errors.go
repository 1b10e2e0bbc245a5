package corpus

import "errors"

// ValidationError marks manifest problems, as opposed to fixture read
// or decode failures.
type ValidationError struct{ Err error }

func (e ValidationError) Error() string { return e.Err.Error() }

func (e ValidationError) Unwrap() error { return e.Err }

func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var v ValidationError
	return errors.As(err, &v)
}
