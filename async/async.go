package async

import "context"

type Result[T any] struct {
	Data T
	Err  error
}

// Go runs fn in a goroutine. The returned channel yields exactly one Result.
func Go[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1) // buffered so sender never blocks
	go func() {
		defer close(ch)
		v, err := fn()
		ch <- Result[T]{Data: v, Err: err}
	}()
	return ch
}

func Await[T any](ch <-chan Result[T]) (T, error) {
	res := <-ch
	return res.Data, res.Err
}

// AwaitCtx is Await that gives up when ctx is done. The goroutine behind ch
// is not stopped; it should observe the same ctx.
func AwaitCtx[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case res := <-ch:
		return res.Data, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
