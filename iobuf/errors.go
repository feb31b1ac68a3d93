package iobuf

import "errors"

var (
	// ErrClosed is returned by any operation attempted on a closed Pipeline.
	ErrClosed = errors.New("iobuf: pipeline closed")

	// ErrBadData marks a format error raised by a filter (eg. the block
	// filter finding a corrupt length header). Non-recoverable for the
	// stream: the sticky error is not cleared by further reads.
	ErrBadData = errors.New("iobuf: bad data")

	// ErrTooDeep is returned by Push once the chain would exceed MaxNesting.
	ErrTooDeep = errors.New("iobuf: filter chain nested too deeply")

	// ErrSeekBusy is returned by Seek when a non-file stage is still
	// pushed on top of the bottom file stage: such seeks are rejected
	// rather than silently popping the extra stages without flushing
	// them.
	ErrSeekBusy = errors.New("iobuf: seek not allowed while filters are pushed")

	// ErrNotSeekable is returned by Seek on a stream pipeline whose bottom
	// stage doesn't support absolute positioning (sockets, host streams).
	ErrNotSeekable = errors.New("iobuf: pipeline is not seekable")

	// ErrShortWrite means a sink adapter accepted fewer bytes than asked
	// without returning an error. This should never happen for a
	// well-behaved adapter; seeing it means the adapter is broken.
	ErrShortWrite = errors.New("iobuf: sink accepted fewer bytes than requested")
)

// misuse panics on programmer errors: calling Read on an
// Output pipeline, Seek on a Temp pipeline, Pop of a filter that isn't on
// the chain. These are not recoverable stream errors; they are bugs.
type misuseError struct{ msg string }

func (e *misuseError) Error() string { return "iobuf: misuse: " + e.msg }

func misuse(msg string) {
	panic(&misuseError{msg})
}
