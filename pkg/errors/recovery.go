package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and returns it as an error.
// The stack trace is kept in Details for logging and never rendered to callers.
func RecoverPanic(r interface{}) *Error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = v
	case string:
		err = fmt.Errorf("panic: %s", v)
	default:
		err = fmt.Errorf("panic: %v", v)
	}

	return ErrInternal.
		WithCause(err).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// RecoverPanicWithCallback recovers from a panic and calls a callback with the error
func RecoverPanicWithCallback(r interface{}, callback func(*Error)) *Error {
	err := RecoverPanic(r)
	if err != nil && callback != nil {
		callback(err)
	}
	return err
}
