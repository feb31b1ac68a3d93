package iobuf

import "io"

// seeker is implemented by a bottom stage's ctx when it supports absolute
// positioning (the file adapter in package source). Sockets and Mem
// buffers don't implement it.
type seeker interface {
	Seek(offset int64, whence int) (int64, error)
}

// Seek repositions the bottom stage to an absolute offset. Seek is
// rejected with ErrSeekBusy whenever any filter is still pushed on top of
// the bottom source/sink stage: popping them silently first would discard
// their buffered state without a flush.
func (p *Pipeline) Seek(offset int64, whence int) (int64, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if p.kind == KindTemp {
		// an InputTemp pipeline is restartable via seek(0) and nothing
		// else; any other Temp seek is misuse.
		if p.dir == DirInput && offset == 0 && whence == io.SeekStart && len(p.stages) == 1 {
			s := p.stages[0]
			s.cursor = 0
			p.total, p.current = 0, 0
			return 0, nil
		}
		misuse("seek on a temp pipeline")
	}
	if len(p.stages) != 1 {
		return 0, ErrSeekBusy
	}
	bottom := p.stages[0]
	sk, ok := bottom.ctx.(seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	pos, err := sk.Seek(offset, whence)
	if err != nil {
		return pos, err
	}

	bottom.length = 0
	bottom.cursor = 0
	bottom.pendingEOF = false
	bottom.stickyErr = nil

	// Tell() reflects the new absolute position; per-stage counters do
	// not survive a reposition.
	p.total, p.current = pos, 0
	return pos, nil
}

// Copy streams all remaining bytes from src (an input pipeline) into dst
// (an output pipeline) using a scratch buffer that is zeroed before this
// call returns, so key material never lingers in a reused buffer.
func Copy(dst, src *Pipeline) (int64, error) {
	buf := make([]byte, DefaultBufSize)
	defer func() {
		for i := range buf {
			buf[i] = 0
		}
	}()

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == errEOF {
				return total, nil
			}
			return total, rerr
		}
	}
}
