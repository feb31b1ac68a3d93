// Package block implements the OpenPGP partial-body-length block filter:
// a streaming framer for indefinite-length OpenPGP packets.
// On the read side it parses the variant-length segment headers and
// delivers the payload bytes; on the write side it emits partial segments
// and, on Free, a final definite-length header for the tail.
package block

import (
	"fmt"
	"io"

	"github.com/pgpfix/pgpfix/binary"
	"github.com/pgpfix/pgpfix/iobuf"
)

// MinPartialChunk is the smallest (and, on the write side, the only)
// partial segment size this filter emits. OpenPGP requires the first
// partial block of a packet to be at least 512 bytes.
const (
	MinPartialChunk     = 512
	minPartialChunkPow  = 9
	partialHeaderMarker = 0xE0
)

// segment states on the read side
const (
	segPartial = iota // inside a partial segment; more headers follow
	segFinal          // inside the final, definite-length segment
)

// filterCtx is the block filter context.
type filterCtx struct {
	dir iobuf.Direction

	// read side
	size   uint32 // bytes remaining in the current segment
	state  int    // segPartial or segFinal
	firstC int    // first length octet handed over at init; -1 once consumed
	eof    bool

	// write side
	buf []byte // pending tail, always < MinPartialChunk... except mid-flush
}

// PushRead pushes a block filter in read mode onto an input pipeline.
// firstC is the first length octet, which the caller has already consumed
// from the stream while identifying the packet.
func PushRead(p *iobuf.Pipeline, firstC byte) error {
	ctx := &filterCtx{dir: iobuf.DirInput, firstC: int(firstC)}
	return p.Push(Filter, ctx, true, "block")
}

// PushWrite pushes a block filter in write mode onto an output pipeline.
// Closing (or popping) the filter emits the final definite-length header.
func PushWrite(p *iobuf.Pipeline) error {
	ctx := &filterCtx{dir: iobuf.DirOutput, firstC: -1}
	return p.Push(Filter, ctx, true, "block")
}

// Filter is the block filter callback.
func Filter(ctx any, verb iobuf.ControlVerb, down *iobuf.Downstream, buf []byte, n *int) error {
	c := ctx.(*filterCtx)

	switch verb {
	case iobuf.Init:
		c.size = 0
		c.eof = false
		if c.dir == iobuf.DirInput {
			c.state = segPartial
		}
		return nil

	case iobuf.Underflow:
		return c.underflow(down, buf, n)

	case iobuf.Flush:
		return c.flush(down, buf, n)

	case iobuf.Free:
		if c.dir == iobuf.DirOutput && !c.eof {
			return c.finish(down)
		}
		c.buf = nil
		return nil

	case iobuf.Cancel:
		c.buf = nil
		c.eof = true
		return nil

	case iobuf.Describe:
		*n = copy(buf, "block")
		return nil
	}
	return nil
}

// underflow parses segment headers and delivers payload bytes.
func (c *filterCtx) underflow(down *iobuf.Downstream, buf []byte, n *int) error {
	if c.dir != iobuf.DirInput {
		return fmt.Errorf("%w: block write filter asked to underflow", iobuf.ErrBadData)
	}

	got := 0
	defer func() { *n = got }()

	if c.eof {
		return io.EOF
	}

	for got < len(buf) {
		if c.size == 0 {
			if c.state == segFinal {
				c.eof = true
				if got == 0 {
					return io.EOF
				}
				return nil
			}
			if err := c.nextHeader(down); err != nil {
				if err == io.EOF {
					c.eof = true
					if got == 0 {
						return io.EOF
					}
					return nil
				}
				return err
			}
			continue
		}

		want := len(buf) - got
		if uint32(want) > c.size {
			want = int(c.size)
		}
		m, err := down.Read(buf[got : got+want])
		got += m
		c.size -= uint32(m)
		if err != nil {
			// a stream ending inside a declared segment is corruption
			return fmt.Errorf("%w: block filter: segment truncated (%d bytes missing)",
				iobuf.ErrBadData, c.size)
		}
	}
	return nil
}

// nextHeader consumes one length header and sets size/state. Returns io.EOF
// for an empty final segment (zero-length tail).
func (c *filterCtx) nextHeader(down *iobuf.Downstream) error {
	var l byte
	if c.firstC >= 0 {
		l = byte(c.firstC)
		c.firstC = -1
	} else {
		b, err := down.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: block filter: 1st length byte missing", iobuf.ErrBadData)
		}
		l = b
	}

	switch {
	case l < 192:
		c.size = uint32(l)
		c.state = segFinal
	case l < 224:
		l2, err := down.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: block filter: 2nd length byte missing", iobuf.ErrBadData)
		}
		c.size = uint32(l-192)<<8 + uint32(l2) + 192
		c.state = segFinal
	case l == 255:
		v, err := binary.Msb.ReadUint32(down)
		if err != nil {
			return fmt.Errorf("%w: block filter: invalid 4 byte length", iobuf.ErrBadData)
		}
		c.size = v
		c.state = segFinal
	default:
		// partial segment: length is a power of two, more headers follow
		c.size = 1 << (l & 0x1F)
		c.state = segPartial
	}

	if c.size == 0 && c.state == segFinal {
		return io.EOF // empty final segment latches EOF
	}
	return nil
}

// flush emits as many minimum-chunk partial segments as the pending bytes
// allow and stashes the remainder (< MinPartialChunk) for the next call.
func (c *filterCtx) flush(down *iobuf.Downstream, buf []byte, n *int) error {
	if c.dir != iobuf.DirOutput {
		return fmt.Errorf("%w: block read filter asked to flush", iobuf.ErrBadData)
	}

	*n = len(buf)
	data := buf

	for len(c.buf)+len(data) >= MinPartialChunk {
		if _, err := binary.Msb.WriteUint8(down, partialHeaderMarker|minPartialChunkPow); err != nil {
			return err
		}
		if len(c.buf) > 0 {
			need := MinPartialChunk - len(c.buf)
			if _, err := down.Write(c.buf); err != nil {
				return err
			}
			if _, err := down.Write(data[:need]); err != nil {
				return err
			}
			data = data[need:]
			c.buf = c.buf[:0]
		} else {
			if _, err := down.Write(data[:MinPartialChunk]); err != nil {
				return err
			}
			data = data[MinPartialChunk:]
		}
	}

	if len(data) > 0 {
		if c.buf == nil {
			c.buf = make([]byte, 0, MinPartialChunk)
		}
		c.buf = append(c.buf, data...)
	}
	return nil
}

// finish emits the final definite-length header for the pending tail, then
// the tail itself, and releases the buffer.
func (c *filterCtx) finish(down *iobuf.Downstream) error {
	tail := c.buf
	c.buf = nil

	if err := writeFinalHeader(down, uint32(len(tail))); err != nil {
		return err
	}
	if len(tail) > 0 {
		if _, err := down.Write(tail); err != nil {
			return err
		}
	}
	return nil
}

// writeFinalHeader encodes a definite segment length: one octet below 192,
// the two-octet biased form below 8384, five octets otherwise.
func writeFinalHeader(w io.Writer, length uint32) error {
	switch {
	case length < 192:
		_, err := binary.Msb.WriteUint8(w, uint8(length))
		return err
	case length < 8384:
		// biased form: 0xC0|hi in the first octet, lo in the second
		_, err := binary.Msb.WriteUint16(w, 0xC000+uint16(length-192))
		return err
	default:
		if _, err := binary.Msb.WriteUint8(w, 0xFF); err != nil {
			return err
		}
		_, err := binary.Msb.WriteUint32(w, length)
		return err
	}
}
