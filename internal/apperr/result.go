package apperr

// ErrorBody is the error half of a Result.
type ErrorBody struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Result is the {data, error} envelope returned to API callers. Exactly one side is set.
type Result[T any] struct {
	Data  *T         `json:"data"`
	Error *ErrorBody `json:"error"`
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Data: &v}
}

// Fail wraps err. A nil err is reported as an internal failure so the envelope is never empty.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = New(KindInternal, "operation failed without an error")
	}
	kind := KindOf(err)
	return Result[T]{Error: &ErrorBody{
		Kind:      kind,
		Message:   Message(err),
		Retryable: kind.Retryable(),
	}}
}

// From converts a Go (value, error) pair into a Result.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// OK reports whether the result carries data.
func (r Result[T]) OK() bool {
	return r.Error == nil
}

// Status returns the HTTP status code for the result.
func (r Result[T]) Status(success int) int {
	if r.Error == nil {
		return success
	}
	return r.Error.Kind.HTTPStatus()
}
