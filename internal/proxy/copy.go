package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

type closeWriter interface {
	CloseWrite() error
}

// CopyBidirectional copies between left and right until both directions
// finish or ctx is done, then closes both.
//
// When one direction reaches EOF, only the write side of its destination is
// shut down, so the other direction keeps flowing. A copy error in either
// direction closes both.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	pipe := func(dst, src net.Conn) func() error {
		return func() error {
			if _, err := io.Copy(dst, src); err != nil {
				return err
			}
			if cw, ok := dst.(closeWriter); ok {
				_ = cw.CloseWrite()
			} else {
				_ = dst.Close()
			}
			return nil
		}
	}
	g.Go(pipe(left, right))
	g.Go(pipe(right, left))

	// gctx is done on ctx cancellation or the first copy error.
	done := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			closeBoth()
		case <-done:
		}
	}()

	err := g.Wait()
	close(done)
	if isClosedErr(err) {
		return nil
	}
	return err
}

func isClosedErr(err error) bool {
	return err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
