package qaclient

// Result is the outcome of one feed mutation: the server value or the
// reason it failed. A like conflict carries both, the conflict in Err and
// the refreshed server state in Value.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

func resultOf[T any](v T, err error) Result[T] {
	if err != nil {
		var zero T
		return Result[T]{Value: zero, Err: err}
	}
	return Result[T]{Value: v}
}
