// Package fdcache implements the process-wide close cache: a path-keyed
// pool of recently closed file handles kept alive for reuse, so a
// tight open/close/open loop over the same path (typical when a pipeline
// walks packet-by-packet through a file) avoids repeated OS open/close
// syscalls.
package fdcache

import "errors"

var (
	// ErrInvalid is returned by Open when the cached handle could not be
	// rewound to offset 0; the slot is invalidated before returning.
	ErrInvalid = errors.New("fdcache: cached handle failed to rewind")
)
