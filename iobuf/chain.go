package iobuf

import "fmt"

// pushStream is the internal constructor used both by the exported Push and
// by the source package's Open*/Create*/Attach* helpers to install the
// bottom stage.
func (p *Pipeline) pushStream(cb FilterFunc, ctx any, ownsCtx bool, name string) error {
	if len(p.stages) >= MaxNesting {
		return ErrTooDeep
	}

	// Temp pipelines (input or output) are promoted to Stream before a
	// filter is pushed on top: pushed filters must not buffer as Temp.
	if p.kind == KindTemp && len(p.stages) > 0 {
		p.kind = KindStream
	}

	// pushing onto an output pipeline must flush the current head first,
	// so bytes already staged for it go out before the new filter
	// intercepts future writes.
	if p.dir == DirOutput && len(p.stages) > 0 {
		if err := p.flushAt(0); err != nil {
			return err
		}
	}

	s := &stage{
		dir:      p.dir,
		kind:     KindStream,
		callback: cb,
		ctx:      ctx,
		ownsCtx:  ownsCtx,
		buf:      make([]byte, 0, p.bufSize),
		num:      p.nextNum,
		subnum:   len(p.stages),
		name:     name,
	}
	p.nextNum++

	// roll the previous head's delivered-byte count into `total`, so
	// Tell() stays monotonic across the push.
	if len(p.stages) > 0 {
		p.total += p.current
		p.current = 0
	}

	p.stages = append([]*stage{s}, p.stages...)

	n := 0
	if err := cb(ctx, Init, p.downstream(1), nil, &n); err != nil {
		p.stages = p.stages[1:]
		return err
	}

	if p.Logger != nil {
		p.Debug().Str("filter", name).Int("depth", len(p.stages)).Msg("iobuf: pushed filter")
	}
	return nil
}

// Push adds a filter at the head of the pipeline.
// ownsCtx controls whether Free releases ctx (if it implements io.Closer)
// once the filter is popped or the pipeline closes.
func (p *Pipeline) Push(cb FilterFunc, ctx any, ownsCtx bool, name string) error {
	return p.pushStream(cb, ctx, ownsCtx, name)
}

// Pop removes the head filter, flushing it first if this is an output
// pipeline, then sending Free. On an input pipeline, bytes the popped
// filter had already produced but the caller hadn't read yet are carried
// over to the new head, so no delivered byte is ever lost to a pop. It is
// a misuse error to pop an empty pipeline or to pop past the bottom
// source/sink stage.
func (p *Pipeline) Pop() error {
	if len(p.stages) <= 1 {
		misuse("pop of nonexistent filter")
	}

	s := p.stages[0]

	var err error
	if p.dir == DirOutput {
		err = p.flushAt(0)
	}

	if s.callback != nil {
		n := 0
		if ferr := s.callback(s.ctx, Free, p.downstream(1), nil, &n); ferr != nil && err == nil {
			err = ferr
		}
	}
	closeCtx(s)

	leftover := s.buf[s.cursor:s.length]
	p.stages = p.stages[1:]

	if p.dir == DirInput && len(leftover) > 0 {
		nh := p.stages[0]
		merged := make([]byte, 0, len(leftover)+nh.length-nh.cursor+p.bufSize)
		merged = append(merged, leftover...)
		merged = append(merged, nh.buf[nh.cursor:nh.length]...)
		nh.buf = merged
		nh.cursor = 0
		nh.length = len(merged)
	}

	// roll the popped head's delivered-byte count forward, as push does
	p.total += p.current
	p.current = 0

	if p.Logger != nil {
		p.Debug().Str("filter", s.name).Int("depth", len(p.stages)).Msg("iobuf: popped filter")
	}
	return err
}

// downstream returns a Downstream handle addressing stage idx, or nil if
// idx is past the bottom of the chain.
func (p *Pipeline) downstream(idx int) *Downstream {
	if idx >= len(p.stages) {
		return nil
	}
	return &Downstream{p: p, idx: idx}
}

// closeCtx releases a stage's context if the pipeline owns it and it knows
// how to close itself.
func closeCtx(s *stage) {
	if !s.ownsCtx {
		return
	}
	if c, ok := s.ctx.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

// Close cascades Free to every stage, flushing outputs first, and returns
// the first error encountered.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var first error
	for len(p.stages) > 0 {
		s := p.stages[0]
		if p.dir == DirOutput {
			if err := p.flushAt(0); err != nil && first == nil {
				first = err
			}
		}
		if s.callback != nil {
			n := 0
			if err := s.callback(s.ctx, Free, p.downstream(1), nil, &n); err != nil && first == nil {
				first = err
			}
		}
		closeCtx(s)
		if s.kind == KindTemp && s.dir == DirOutput {
			p.tempOut = s.buf[:s.length]
		}
		p.stages = p.stages[1:]
	}
	return first
}

// Cancel signals Cancel down the chain (discarding pending output without
// flushing), then closes. For an OutputStream created over a real path, the
// file-backed adapter removes the partial file once its handle is closed
// (see source.CreateWrite), so the file is gone when Cancel returns.
func (p *Pipeline) Cancel() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var first error
	for len(p.stages) > 0 {
		s := p.stages[0]
		if s.callback != nil {
			n := 0
			if err := s.callback(s.ctx, Cancel, p.downstream(1), nil, &n); err != nil && first == nil {
				first = err
			}
			if err := s.callback(s.ctx, Free, p.downstream(1), nil, &n); err != nil && first == nil {
				first = err
			}
		}
		closeCtx(s)
		p.stages = p.stages[1:]
	}
	return first
}

// Describe returns a short diagnostic string for the current stage stack,
// from head to bottom.
func (p *Pipeline) Describe() string {
	var buf [64]byte
	out := "["
	for i, s := range p.stages {
		if i > 0 {
			out += " -> "
		}
		n := 0
		if s.callback == nil {
			out += s.name
		} else if err := s.callback(s.ctx, Describe, nil, buf[:], &n); err == nil && n > 0 {
			out += string(buf[:n])
		} else {
			out += s.name
		}
		out += fmt.Sprintf("(%d.%d)", s.num, s.subnum)
	}
	return out + "]"
}
