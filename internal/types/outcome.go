package types

// Outcome is the success-or-failure envelope carried across every stage
// boundary of the ranking pipeline. Faults are converted into a failure
// Outcome where they happen and travel through the queues as data.
//
// The fields are unexported so an Outcome cannot be mutated after
// construction; use Success or Failure to build one.
type Outcome[T any] struct {
	ok      bool
	message string
	data    T
}

// Success wraps the result of an operation that completed normally.
func Success[T any](data T) Outcome[T] {
	return Outcome[T]{ok: true, data: data}
}

// Failure wraps the message of an operation that failed.
func Failure[T any](message string) Outcome[T] {
	return Outcome[T]{message: message}
}

// OK reports whether the outcome carries data.
func (o Outcome[T]) OK() bool {
	return o.ok
}

// Message returns the failure message. It is empty for successful outcomes.
func (o Outcome[T]) Message() string {
	return o.message
}

// Data returns the payload. It is the zero value for failed outcomes.
func (o Outcome[T]) Data() T {
	return o.data
}

// Relay re-types a failed outcome so it can be forwarded to a stage with a
// different payload type. The message is preserved verbatim.
func Relay[Out, In any](o Outcome[In]) Outcome[Out] {
	return Failure[Out](o.message)
}
