package iobuf

// flushAt implements the flush protocol for the stage at idx: it drains
// whatever is currently buffered in stages[idx] by calling
// its Flush verb, in full, or fails with ErrShortWrite if the filter
// silently accepted less than it was given.
func (p *Pipeline) flushAt(idx int) error {
	if idx >= len(p.stages) {
		return nil
	}
	s := p.stages[idx]
	if s.kind == KindTemp {
		return nil // Temp never drains on its own (promoted to Stream on push)
	}
	if s.length == 0 {
		return nil
	}
	if s.callback == nil {
		return ErrClosed
	}

	down := p.downstream(idx + 1)
	buf := s.buf[:s.length]
	n := len(buf)
	err := s.callback(s.ctx, Flush, down, buf, &n)
	if err != nil {
		s.stickyErr = err
		return err
	}
	if n != len(buf) {
		err := ErrShortWrite
		s.stickyErr = err
		return err
	}
	s.length = 0
	s.cursor = 0
	return nil
}

// writeAt appends buf to stage idx, flushing through the filter as the
// internal buffer fills, or routing straight through the zero-copy path
// when buf alone clears ZerocopyThreshold and nothing is already buffered.
func (p *Pipeline) writeAt(idx int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if idx >= len(p.stages) {
		return 0, ErrClosed
	}
	s := p.stages[idx]
	if s.stickyErr != nil {
		return 0, s.stickyErr
	}

	if s.kind == KindTemp {
		// OutputTemp: grow the internal buffer by DefaultBufSize steps
		// instead of draining through a filter.
		if cap(s.buf)-s.length < len(buf) {
			grown := make([]byte, s.length, cap(s.buf)+len(buf)+p.bufSize)
			copy(grown, s.buf[:s.length])
			s.buf = grown
		}
		n := copy(s.buf[s.length:cap(s.buf)], buf)
		s.buf = s.buf[:s.length+n]
		s.length += n
		if idx == 0 {
			p.current += int64(n)
		}
		return n, nil
	}

	if s.callback == nil {
		return 0, ErrClosed
	}

	if s.length == 0 && !s.noFast && len(buf) >= ZerocopyThreshold {
		down := p.downstream(idx + 1)
		n := len(buf)
		err := s.callback(s.ctx, Flush, down, buf, &n)
		if err != nil {
			s.stickyErr = err
			return n, err
		}
		if n != len(buf) {
			err := ErrShortWrite
			s.stickyErr = err
			return n, err
		}
		if idx == 0 {
			p.current += int64(n)
		}
		return n, nil
	}

	written := 0
	for written < len(buf) {
		if cap(s.buf)-s.length == 0 {
			if err := p.flushAt(idx); err != nil {
				return written, err
			}
		}
		free := cap(s.buf) - s.length
		if free == 0 {
			// filter refused to drain; avoid spinning forever
			return written, ErrShortWrite
		}
		n := copy(s.buf[s.length:cap(s.buf)], buf[written:])
		s.length += n
		written += n
		if idx == 0 {
			p.current += int64(n)
		}
	}
	return written, nil
}

// writeByteAt writes a single byte to stage idx.
func (p *Pipeline) writeByteAt(idx int, b byte) error {
	_, err := p.writeAt(idx, []byte{b})
	return err
}
