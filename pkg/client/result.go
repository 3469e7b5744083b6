package client

import "fmt"

// Result is the outcome of every network-facing client operation.
type Result[T any] struct {
	Success bool
	Value   T
	Text    string
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Success: true, Value: v}
}

// Fail builds a failed result with a formatted reason.
func Fail[T any](format string, args ...any) Result[T] {
	return Result[T]{Text: fmt.Sprintf(format, args...)}
}

func (r Result[T]) String() string {
	if r.Success {
		return fmt.Sprintf("ok: %v", r.Value)
	}
	return "failed: " + r.Text
}
