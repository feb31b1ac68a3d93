package source

import (
	"errors"
	"io"
	"net"

	"github.com/pgpfix/pgpfix/iobuf"
)

// socketCtx wraps a net.Conn. Sockets are never routed through the close
// cache: Free closes the connection directly, and only when this side owns
// the close.
type socketCtx struct {
	conn        net.Conn
	closeOnFree bool
}

func (c *socketCtx) Close() error {
	if !c.closeOnFree || c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}

func socketFilter(ctx any, verb iobuf.ControlVerb, _ *iobuf.Downstream, buf []byte, n *int) error {
	c := ctx.(*socketCtx)

	switch verb {
	case iobuf.Init:
		return nil

	case iobuf.Underflow:
		if c.conn == nil {
			*n = 0
			return ErrClosed
		}
		k, err := c.conn.Read(buf)
		if k < 0 {
			k = 0
		}
		*n = k
		if err != nil && k > 0 {
			return nil // deliver now; the error surfaces on the next call
		}
		return err

	case iobuf.Flush:
		if c.conn == nil {
			*n = 0
			return ErrClosed
		}
		return writeFull(c.conn, buf, n)

	case iobuf.Describe:
		*n = copy(buf, "socket")
		return nil

	case iobuf.Cancel:
		return nil

	case iobuf.Free:
		return c.Close()

	default:
		return errors.New("source: unsupported control verb on socket filter")
	}
}

// writeFull writes buf to w in full, looping over partial writes; on
// failure *n holds the bytes successfully written.
func writeFull(w io.Writer, buf []byte, n *int) error {
	written := 0
	for written < len(buf) {
		k, err := w.Write(buf[written:])
		written += k
		if err != nil {
			*n = written
			return err
		}
	}
	*n = written
	return nil
}
