package stream

import (
	"context"
	"io"
)

// Emitter writes text onto w; *Transmitter is the production implementation.
type Emitter interface {
	Transmit(ctx context.Context, w io.Writer, text string) (int, error)
}

// Pipe starts emitting text in a new goroutine and returns the read side. The
// reader is single-pass: it yields the paced characters once and then io.EOF.
// Closing the reader early stops the emission.
func Pipe(ctx context.Context, e Emitter, text string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := e.Transmit(ctx, pw, text)
		_ = pw.CloseWithError(err)
	}()
	return pr
}
