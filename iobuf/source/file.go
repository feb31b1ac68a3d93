package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pgpfix/pgpfix/iobuf"
)

// peekSize is the file filter's look-ahead buffer size.
const peekSize = 32

// fileCtx is the per-session state for the bottom-most filter of a
// file-backed pipeline.
type fileCtx struct {
	f    *os.File
	name string

	printOnly bool // filename is a label ("-", "[handle]"), not a real path
	keepOpen  bool // Free must not close f
	cacheable bool // Free may route the close through the close cache
	created   bool // we created the file; Cancel removes it again

	cancelled     bool
	seeked        bool // Peek is invalid once a seek happened
	eofSeen       bool
	delayedErr    error
	delayedWasEOF bool

	peeked  [peekSize]byte
	npeeked int
	upeeked int
}

// Close implements io.Closer so iobuf's Pop/Close path (which only knows
// how to release a ctx implementing io.Closer) can release fileCtx even
// outside of the Free verb, eg. if Push's Init fails. It is idempotent:
// the Free verb and the engine's ctx-release may both land here.
func (c *fileCtx) Close() error {
	if c.f == nil {
		return nil
	}
	f := c.f
	c.f = nil

	if c.keepOpen {
		return nil
	}

	var err error
	if c.cacheable && !c.cancelled {
		err = Cache.Close(c.name, f, true)
	} else {
		err = f.Close()
	}

	// a cancelled output file is removed after the close, so exclusive-open
	// platforms see the handle gone first
	if c.cancelled && c.created && !c.printOnly {
		if rerr := os.Remove(c.name); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// Seek implements the seeker interface iobuf.Seek dispatches to.
func (c *fileCtx) Seek(offset int64, whence int) (int64, error) {
	c.eofSeen = false
	c.delayedErr = nil
	c.npeeked, c.upeeked = 0, 0
	c.seeked = true
	return c.f.Seek(offset, whence)
}

// fileFilter is the FilterFunc for file-backed pipelines: peek-buffer
// drain first, then delayed-EOF/delayed-error latches, then a real
// read/write with transparent EINTR retry (Go's os.File.Read/Write
// already retries EINTR internally, so this only needs to loop short
// writes).
func fileFilter(ctx any, verb iobuf.ControlVerb, _ *iobuf.Downstream, buf []byte, n *int) error {
	c := ctx.(*fileCtx)

	switch verb {
	case iobuf.Init:
		c.cancelled = false
		c.seeked = false
		c.eofSeen = false
		c.delayedErr = nil
		c.npeeked, c.upeeked = 0, 0
		return nil

	case iobuf.Underflow:
		if c.upeeked < c.npeeked {
			k := copy(buf, c.peeked[c.upeeked:c.npeeked])
			c.upeeked += k
			*n = k
			return nil
		}
		if c.eofSeen {
			*n = 0
			return io.EOF
		}
		if c.delayedErr != nil {
			err := c.delayedErr
			c.delayedErr = nil
			*n = 0
			if c.delayedWasEOF {
				c.eofSeen = true
			}
			return err
		}
		if c.f == nil {
			*n = 0
			return ErrClosed
		}

		k, err := c.f.Read(buf)
		if k < 0 {
			k = 0
		}
		*n = k
		if err != nil {
			if err == io.EOF {
				if k > 0 {
					// short read coinciding with EOF: deliver the bytes
					// now, latch EOF for the next call
					c.delayedErr = io.EOF
					c.delayedWasEOF = true
					return nil
				}
				c.eofSeen = true
				return io.EOF
			}
			if k > 0 {
				c.delayedErr = err
				c.delayedWasEOF = false
				return nil
			}
			return err
		}
		return nil

	case iobuf.Flush:
		if c.f == nil {
			*n = 0
			return ErrClosed
		}
		written := 0
		for written < len(buf) {
			k, err := c.f.Write(buf[written:])
			written += k
			if err != nil {
				*n = written
				return err
			}
		}
		*n = written
		return nil

	case iobuf.Peek:
		if c.seeked {
			return ErrPeekAfterSeek
		}
		for c.npeeked < peekSize {
			k, err := c.f.Read(c.peeked[c.npeeked:])
			if k > 0 {
				c.npeeked += k
			}
			if err != nil {
				if err != io.EOF && c.npeeked == 0 {
					return err
				}
				break
			}
		}
		k := c.npeeked - c.upeeked
		if k > len(buf) {
			k = len(buf)
		}
		copy(buf, c.peeked[c.upeeked:c.upeeked+k])
		*n = k
		return nil

	case iobuf.Describe:
		tag := fmt.Sprintf("file(%s)", c.name)
		*n = copy(buf, tag)
		return nil

	case iobuf.Cancel:
		c.cancelled = true
		return nil

	case iobuf.Free:
		return c.Close()

	default:
		return errors.New("source: unsupported control verb on file filter")
	}
}
