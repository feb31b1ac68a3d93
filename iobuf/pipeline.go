// Package iobuf implements a composable byte-stream filter pipeline for
// OpenPGP message processing: a chain of stacked filters through which
// bytes flow from a source to a consumer (input pipeline) or from a
// producer to a sink (output pipeline).
//
// A Pipeline is single-owner and not safe for concurrent use from more
// than one goroutine at a time. The package-level fdcache singleton it
// talks to for file-backed pipelines is the one piece of shared state,
// and is safe for concurrent use on its own.
package iobuf

import (
	"io"

	"github.com/rs/zerolog"
)

// errEOF is the distinguished EOF sentinel. It is io.EOF itself, not a
// private value, so pipeline reads compose with ordinary
// io.Reader-consuming stdlib code without translation.
var errEOF = io.EOF

// Direction is the direction bytes flow through a Pipeline.
type Direction byte

const (
	// DirInput: bytes flow from a source, through pushed filters, to the caller.
	DirInput Direction = iota
	// DirOutput: bytes flow from the caller, through pushed filters, to a sink.
	DirOutput
)

// Kind distinguishes a stream-backed pipeline from a pure in-memory one.
type Kind byte

const (
	KindStream Kind = iota // backed by a real source/sink; seekable at the bottom
	KindTemp               // backed by an in-memory buffer only
)

// MaxNesting is the deepest a filter chain may grow.
const MaxNesting = 64

// DefaultBufSize is the capacity given to a freshly pushed stage's internal
// buffer, and the growth increment for OutputTemp pipelines.
const DefaultBufSize = 8192

// ZerocopyThreshold is the external-drain-buffer size at or above which Underflow
// and Flush bypass the internal buffer entirely.
const ZerocopyThreshold = 1024

// Options configures a Pipeline before it is opened. The zero Options is
// ready to use.
type Options struct {
	// Logger receives Debug-level traces of push/pop/underflow/flush
	// activity. Nil disables logging.
	Logger *zerolog.Logger

	// BufSize overrides DefaultBufSize for this pipeline's stages.
	// Treat it as write-once: set it before the bottom stage is
	// attached, never after.
	BufSize int
}

// stage is a single link in the filter chain.
type stage struct {
	dir  Direction
	kind Kind

	callback FilterFunc
	ctx      any
	ownsCtx  bool

	buf    []byte
	length int // bytes valid in buf
	cursor int // read position within buf[:length]

	ext *extDrain // optional external drain descriptor, borrowed per-call

	num, subnum int // diagnostic identifiers

	stickyErr  error
	pendingEOF bool
	noFast     bool // disables the zero-copy path (eg. a read-limit is set)

	name string // diagnostic label (eg. "file", "block")
}

// extDrain is the external drain buffer descriptor: a borrowed slice the
// caller supplied directly to Read/Write, which
// Underflow/Flush may fill/drain in place of the internal buffer once it
// is at least ZerocopyThreshold bytes and the internal buffer is empty.
type extDrain struct {
	buf       []byte
	used      int
	preferred bool
}

// Pipeline is an ordered, head-first sequence of stages. All external
// handles reference the *Pipeline itself: Push and Pop mutate the
// stack in place, so a *Pipeline's identity is stable for its whole
// lifetime even as stages are pushed and popped on top of it.
type Pipeline struct {
	*zerolog.Logger

	dir  Direction
	kind Kind

	stages []*stage // head-first: stages[0] is the head

	bufSize int

	total   int64 // bytes delivered/written by stages that came before the current head
	current int64 // bytes delivered/written by the current head
	limit   int64 // optional read limit; 0 = unlimited

	nextNum int // diagnostic stage-numbering counter

	closed  bool
	temp    bool   // created as a Temp pipeline (sticks across promotion)
	tempOut []byte // OutputTemp contents captured at Close
}

// NewInput returns an empty input Pipeline. Use one of package source's
// Open*/Attach* helpers to give it a bottom stage.
func NewInput(opts Options) *Pipeline {
	return newPipeline(DirInput, KindStream, opts)
}

// NewOutput returns an empty output Pipeline. Use one of package source's
// Create*/Attach* helpers to give it a bottom stage.
func NewOutput(opts Options) *Pipeline {
	return newPipeline(DirOutput, KindStream, opts)
}

// NewTempInput returns an InputTemp pipeline reading directly from buf.
// It is restartable only via Seek(0, io.SeekStart) and cannot be pushed
// onto without first being promoted to a stream pipeline.
func NewTempInput(buf []byte, opts Options) *Pipeline {
	p := newPipeline(DirInput, KindTemp, opts)
	p.temp = true
	s := &stage{
		dir:  DirInput,
		kind: KindTemp,
		buf:  buf,

		length: len(buf),
		name:   "mem",
	}
	p.stages = []*stage{s}
	return p
}

// NewTempOutput returns an OutputTemp pipeline backed by a growing
// in-memory buffer, read back afterwards with Bytes.
func NewTempOutput(opts Options) *Pipeline {
	p := newPipeline(DirOutput, KindTemp, opts)
	p.temp = true
	s := &stage{
		dir:  DirOutput,
		kind: KindTemp,
		buf:  make([]byte, 0, p.bufSize),
		name: "mem",
	}
	p.stages = []*stage{s}
	return p
}

// Bytes returns the bytes accumulated in an OutputTemp pipeline, including
// (after Close) anything pushed filters emitted while being freed. It is a
// misuse error to call Bytes on anything but an OutputTemp pipeline.
func (p *Pipeline) Bytes() []byte {
	if !p.temp || p.dir != DirOutput {
		misuse("Bytes called on a non-temp-output pipeline")
	}
	for _, s := range p.stages {
		if s.kind == KindTemp {
			return s.buf[:s.length]
		}
	}
	return p.tempOut
}

// newPipeline is the shared constructor behind NewInput/NewOutput/NewTemp*.
func newPipeline(dir Direction, kind Kind, opts Options) *Pipeline {
	p := &Pipeline{dir: dir, kind: kind}
	if opts.Logger != nil {
		p.Logger = opts.Logger
	} else {
		l := zerolog.Nop()
		p.Logger = &l
	}
	p.bufSize = opts.BufSize
	if p.bufSize <= 0 {
		p.bufSize = DefaultBufSize
	}
	return p
}

// head returns the current top stage, or nil if the pipeline is empty.
func (p *Pipeline) head() *stage {
	if len(p.stages) == 0 {
		return nil
	}
	return p.stages[0]
}

// Depth returns the number of stages currently pushed, including the
// bottom source/sink stage.
func (p *Pipeline) Depth() int { return len(p.stages) }

// Closed reports whether Close or Cancel has already run.
func (p *Pipeline) Closed() bool { return p.closed }

// Tell returns the logical byte position: bytes delivered by prior heads
// plus bytes delivered by the current head.
func (p *Pipeline) Tell() int64 { return p.total + p.current }

// SetReadLimit caps the total bytes readable from the head. Once set, the
// zero-copy fast path is disabled and every byte is accounted for. Pass 0
// to remove any limit.
func (p *Pipeline) SetReadLimit(n int64) {
	p.limit = n
	if h := p.head(); h != nil {
		h.noFast = n > 0
	}
}

func (p *Pipeline) checkDir(want Direction) {
	if p.dir != want {
		if want == DirInput {
			misuse("read on an output pipeline")
		} else {
			misuse("write on an input pipeline")
		}
	}
}
