package source

import (
	"errors"
	"io"

	"github.com/pgpfix/pgpfix/iobuf"
)

// streamCtx adapts a host io.Reader or io.Writer. Exactly one of r/w is
// set, matching the pipeline's direction. Free closes the stream only if it knows how.
type streamCtx struct {
	r          io.Reader
	w          io.Writer
	eof        bool
	delayedErr error
}

func (c *streamCtx) Close() error {
	if cl, ok := c.r.(io.Closer); ok {
		c.r = nil
		return cl.Close()
	}
	if cl, ok := c.w.(io.Closer); ok {
		c.w = nil
		return cl.Close()
	}
	return nil
}

func streamFilter(ctx any, verb iobuf.ControlVerb, _ *iobuf.Downstream, buf []byte, n *int) error {
	c := ctx.(*streamCtx)

	switch verb {
	case iobuf.Init:
		c.eof = false
		return nil

	case iobuf.Underflow:
		if c.eof {
			*n = 0
			return io.EOF
		}
		if c.delayedErr != nil {
			err := c.delayedErr
			c.delayedErr = nil
			*n = 0
			return err
		}
		if c.r == nil {
			*n = 0
			return ErrClosed
		}
		k, err := c.r.Read(buf)
		if k < 0 {
			k = 0
		}
		*n = k
		if err == io.EOF {
			c.eof = true
			if k > 0 {
				return nil // delayed EOF: latched for the next call
			}
			return io.EOF
		}
		if err != nil && k > 0 {
			c.delayedErr = err // deliver the bytes; error surfaces next call
			return nil
		}
		return err

	case iobuf.Flush:
		if c.w == nil {
			*n = 0
			return ErrClosed
		}
		return writeFull(c.w, buf, n)

	case iobuf.Describe:
		*n = copy(buf, "stream")
		return nil

	case iobuf.Cancel:
		return nil

	case iobuf.Free:
		return c.Close()

	default:
		return errors.New("source: unsupported control verb on stream filter")
	}
}
