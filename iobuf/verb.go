package iobuf

// ControlVerb is the single control value the filter-callback ABI passes
// to a FilterFunc alongside its buffer.
type ControlVerb byte

const (
	// Init resets per-session flags; no I/O.
	Init ControlVerb = iota

	// Underflow asks an input filter to fill up to len(buf) bytes.
	Underflow

	// Flush asks an output filter to write exactly len(buf) bytes.
	Flush

	// Peek asks the file filter to pre-fill its look-ahead buffer.
	Peek

	// Free flushes (if output) and releases the filter's context.
	Free

	// Cancel discards pending output without flushing.
	Cancel

	// Describe writes a short textual tag into buf, for diagnostics.
	Describe
)

func (v ControlVerb) String() string {
	switch v {
	case Init:
		return "Init"
	case Underflow:
		return "Underflow"
	case Flush:
		return "Flush"
	case Peek:
		return "Peek"
	case Free:
		return "Free"
	case Cancel:
		return "Cancel"
	case Describe:
		return "Describe"
	default:
		return "?"
	}
}

// Downstream is the "chain" argument of the filter-callback ABI: it lets a
// filter pull bytes from, or push bytes to, the next-lower stage instead of
// the engine doing that plumbing for it. The bottom-most stage (file,
// socket, mem) is given a nil Downstream and talks to the OS/buffer
// directly.
//
// Downstream is only valid for the duration of the control-verb call that
// received it.
type Downstream struct {
	p   *Pipeline
	idx int
}

// ReadByte reads a single byte from the downstream stage.
func (d *Downstream) ReadByte() (byte, error) {
	if d == nil {
		return 0, errEOF
	}
	return d.p.readByteAt(d.idx)
}

// Read fills buf from the downstream stage, per io.Reader semantics.
func (d *Downstream) Read(buf []byte) (int, error) {
	if d == nil {
		return 0, errEOF
	}
	return d.p.readAt(d.idx, buf)
}

// WriteByte writes a single byte to the downstream stage.
func (d *Downstream) WriteByte(b byte) error {
	if d == nil {
		return ErrClosed
	}
	return d.p.writeByteAt(d.idx, b)
}

// Write pushes buf to the downstream stage, writing it in full or failing.
func (d *Downstream) Write(buf []byte) (int, error) {
	if d == nil {
		return 0, ErrClosed
	}
	return d.p.writeAt(d.idx, buf)
}

// FilterFunc is the sole protocol between the engine and the outside
// world. ctx is the filter's private, per-session context (owned by
// the filter unless pushed with ownsCtx=false). down lets the filter recurse
// into the next-lower stage; it is nil for bottom (source/sink) filters.
// n is in-out: on Underflow/Flush the caller sets the buffer's capacity via
// len(buf) and the callee reports bytes produced/consumed in *n.
type FilterFunc func(ctx any, verb ControlVerb, down *Downstream, buf []byte, n *int) error
