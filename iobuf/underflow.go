package iobuf

// fillAt implements the underflow protocol for the stage at idx: it
// tries to get stages[idx]'s internal buffer to hold at least
// min(target, all-available-before-EOF) bytes, calling the stage's
// Underflow verb as needed. clearPending controls whether a latched,
// already-drained EOF causes the stage to be spliced out of the chain
// (replaced by whatever is beneath it) once it has nothing left to deliver.
func (p *Pipeline) fillAt(idx int, target int, clearPending bool) error {
	if idx >= len(p.stages) {
		return errEOF
	}
	s := p.stages[idx]

	if s.kind == KindTemp {
		if s.cursor < s.length {
			return nil
		}
		return errEOF // Temp never refills
	}

	// compact: move unread bytes to offset 0
	if s.cursor > 0 {
		n := copy(s.buf[:cap(s.buf)], s.buf[s.cursor:s.length])
		s.length = n
		s.cursor = 0
	}
	if s.length >= target {
		return nil
	}

	if s.pendingEOF {
		if s.length > 0 {
			return nil // serve what's buffered before surfacing the latch
		}
		if !clearPending {
			return errEOF
		}
		return p.spliceOrEOF(idx)
	}

	if s.stickyErr != nil && s.length == 0 {
		return s.stickyErr
	}

	if s.callback == nil {
		if s.length == 0 {
			return errEOF
		}
		return nil
	}

	for s.length < target {
		free := cap(s.buf) - s.length
		if free <= 0 {
			grown := make([]byte, s.length, cap(s.buf)+p.bufSize)
			copy(grown, s.buf[:s.length])
			s.buf = grown
			free = cap(s.buf) - s.length
		}

		// when a read limit is armed on the head, never pull more from
		// the source than the limit still allows: over-reading would
		// consume downstream bytes that belong to whatever comes after
		// the limited region.
		if idx == 0 && p.limit > 0 {
			avail := p.limit - p.current - int64(s.length)
			if avail <= 0 {
				return errEOF
			}
			if int64(free) > avail {
				free = int(avail)
			}
		}

		down := p.downstream(idx + 1)

		// zero-copy choice: route Underflow straight into the
		// caller's external buffer when the internal buffer is still
		// empty and the external buffer clears the threshold.
		if s.ext != nil && s.length == 0 && !s.noFast && len(s.ext.buf) >= ZerocopyThreshold {
			n := len(s.ext.buf)
			err := s.callback(s.ctx, Underflow, down, s.ext.buf, &n)
			if n < 0 {
				n = 0
			}
			s.ext.used = n
			if err != nil {
				return p.latchUnderflow(idx, s, down, err, n == 0)
			}
			return nil
		}

		buf := s.buf[s.length : s.length+free]
		n := len(buf)
		err := s.callback(s.ctx, Underflow, down, buf, &n)
		if n < 0 {
			n = 0
		}
		s.length += n
		s.buf = s.buf[:s.length]
		if err != nil {
			return p.latchUnderflow(idx, s, down, err, s.length == 0)
		}
		if n == 0 {
			break // filter produced nothing but didn't say EOF; don't spin
		}
	}
	return nil
}

// latchUnderflow applies a non-nil Underflow result: EOF frees the filter
// and latches the pending-EOF flag, anything else becomes the sticky
// error. drained says whether the stage has nothing buffered left to
// deliver; only then does the error/EOF surface right now.
func (p *Pipeline) latchUnderflow(idx int, s *stage, down *Downstream, err error, drained bool) error {
	if err == errEOF {
		fn := 0
		_ = s.callback(s.ctx, Free, down, nil, &fn)
		s.callback = nil
		closeCtx(s)
		s.ownsCtx = false
		s.pendingEOF = true
		if drained {
			return p.spliceOrEOF(idx)
		}
		return nil
	}
	s.stickyErr = err
	if drained {
		return err
	}
	return nil
}

// spliceOrEOF handles a stage that has latched EOF with nothing left
// buffered: splice it out of the chain (exposing whatever is beneath it
// as the new occupant of this slot) when a downstream stage exists, or
// return EOF for good.
func (p *Pipeline) spliceOrEOF(idx int) error {
	if idx+1 >= len(p.stages) {
		return errEOF // nothing beneath: EOF for good
	}
	s := p.stages[idx]
	closeCtx(s)
	p.stages = append(p.stages[:idx], p.stages[idx+1:]...)
	if p.Logger != nil {
		p.Debug().Str("filter", s.name).Int("idx", idx).Msg("iobuf: spliced exhausted filter out of chain")
	}
	return errEOF
}

// readAt fills buf from stage idx with io.Reader semantics: short reads are
// allowed, n>0 with err==nil is fine. Large reads into an empty stage go
// through the external-drain fast path, skipping the internal buffer.
func (p *Pipeline) readAt(idx int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if idx >= len(p.stages) {
		return 0, errEOF
	}

	s := p.stages[idx]
	if s.kind != KindTemp && s.cursor == s.length && !s.noFast &&
		len(buf) >= ZerocopyThreshold && !(idx == 0 && p.limit > 0) {
		s.ext = &extDrain{buf: buf, preferred: true}
		err := p.fillAt(idx, len(buf), true)
		used := s.ext.used
		s.ext = nil
		if used > 0 {
			if idx == 0 {
				p.current += int64(used)
			}
			return used, nil
		}
		if err != nil {
			return 0, err
		}
		// fell through to internal buffering (filter ignored the hint)
	}

	if err := p.fillAt(idx, 1, true); err != nil {
		return 0, err
	}
	// re-resolve s: idx's occupant may have changed via splice
	if idx >= len(p.stages) {
		return 0, errEOF
	}
	s = p.stages[idx]
	if s.cursor >= s.length {
		return 0, errEOF
	}
	n := copy(buf, s.buf[s.cursor:s.length])
	s.cursor += n
	if idx == 0 {
		p.current += int64(n)
	}
	return n, nil
}

// readByteAt reads a single byte from stage idx.
func (p *Pipeline) readByteAt(idx int) (byte, error) {
	if idx >= len(p.stages) {
		return 0, errEOF
	}
	s := p.stages[idx]
	if s.cursor >= s.length {
		if err := p.fillAt(idx, 1, true); err != nil {
			return 0, err
		}
		if idx >= len(p.stages) {
			return 0, errEOF
		}
		s = p.stages[idx]
		if s.cursor >= s.length {
			return 0, errEOF
		}
	}
	b := s.buf[s.cursor]
	s.cursor++
	if idx == 0 {
		p.current++
	}
	return b, nil
}
