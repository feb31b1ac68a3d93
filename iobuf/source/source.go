// Package source provides the bottom-most filters of a Pipeline: adapters
// that bridge an OS file, a foreign descriptor, a host stream, or a network
// socket to the iobuf filter-callback ABI.
package source

import (
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pgpfix/pgpfix/fdcache"
	"github.com/pgpfix/pgpfix/iobuf"
	"golang.org/x/sys/unix"
)

// Cache is the close cache file adapters use to recycle handles. Tests may
// swap it for an isolated *fdcache.Cache; production code leaves it at
// fdcache.Default.
var Cache = fdcache.Default

var (
	// ErrClosed mirrors iobuf.ErrClosed for adapter-local plumbing.
	ErrClosed = errors.New("source: handle already released")

	// ErrPeekAfterSeek is returned by the Peek verb once the bottom stage
	// has been repositioned: the look-ahead buffer describes the old
	// position and refilling it would silently skip bytes.
	ErrPeekAfterSeek = errors.New("source: peek after seek")
)

// resolveName maps the special filenames: "-" or "" means the process's
// own stdin/stdout; "/dev/fd/N" dups the numeric descriptor N so closing
// our side never affects the caller's original fd.
func resolveName(name string, forWrite bool) (f *os.File, special bool, err error) {
	switch name {
	case "", "-":
		if forWrite {
			return os.Stdout, true, nil
		}
		return os.Stdin, true, nil
	}

	if rest, ok := strings.CutPrefix(name, "/dev/fd/"); ok {
		fd, perr := strconv.Atoi(rest)
		if perr != nil {
			return nil, false, perr
		}
		dup, derr := unix.Dup(fd)
		if derr != nil {
			return nil, false, derr
		}
		return os.NewFile(uintptr(dup), name), true, nil
	}

	return nil, false, nil
}

// OpenRead opens path for reading, routed through the close cache.
func OpenRead(p *iobuf.Pipeline, path string) error {
	if f, special, err := resolveName(path, false); err != nil {
		return err
	} else if special {
		keep := f == os.Stdin || f == os.Stdout
		return attachFile(p, f, path, attachOpts{printOnly: true, keepOpen: keep})
	}

	if f, ok, err := Cache.Open(path); err == nil && ok {
		return attachFile(p, f, path, attachOpts{cacheable: true})
	} else if err != nil && !errors.Is(err, fdcache.ErrInvalid) {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return attachFile(p, f, path, attachOpts{cacheable: true})
}

// CreateWrite creates path for writing with mode 0700, invalidating any
// cached reader of that path first. Write handles never enter the
// close cache.
func CreateWrite(p *iobuf.Pipeline, path string) error {
	if f, special, err := resolveName(path, true); err != nil {
		return err
	} else if special {
		keep := f == os.Stdin || f == os.Stdout
		return attachFile(p, f, path, attachOpts{printOnly: true, keepOpen: keep})
	}

	Cache.Invalidate(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o700)
	if err != nil {
		return err
	}
	return attachFile(p, f, path, attachOpts{created: true})
}

// OpenRW opens path read-write without any close-cache participation.
func OpenRW(p *iobuf.Pipeline, path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	return attachFile(p, f, path, attachOpts{})
}

// AttachHandle wraps a foreign, already-open fd. The fd is dup'd
// immediately, so our side's close is
// always independent of the caller's descriptor regardless of keepOpen;
// keepOpen additionally leaves the dup open on Free for callers that took
// it back out-of-band.
func AttachHandle(p *iobuf.Pipeline, fd int, keepOpen bool) error {
	dup, err := unix.Dup(fd)
	if err != nil {
		return err
	}
	name := "/dev/fd/" + strconv.Itoa(fd)
	f := os.NewFile(uintptr(dup), name)
	return attachFile(p, f, name, attachOpts{printOnly: true, keepOpen: keepOpen})
}

// AttachFile wraps an *os.File the caller opened themselves, honoring an
// optional read limit.
func AttachFile(p *iobuf.Pipeline, f *os.File, keepOpen bool, readLimit int64) error {
	if err := attachFile(p, f, f.Name(), attachOpts{printOnly: true, keepOpen: keepOpen}); err != nil {
		return err
	}
	if readLimit > 0 {
		p.SetReadLimit(readLimit)
	}
	return nil
}

// AttachSocket wraps a net.Conn as a Pipeline's bottom stage. Sockets are
// never routed through the close cache; closeOnFree controls whether Free
// tears down the connection, so an input and an output pipeline can share
// one conn with only one of them owning the close.
func AttachSocket(p *iobuf.Pipeline, conn net.Conn, closeOnFree bool) error {
	return p.Push(socketFilter, &socketCtx{conn: conn, closeOnFree: closeOnFree}, true, "socket")
}

// AttachReader wraps a host io.Reader as an input pipeline's bottom stage
//, honoring an optional read limit.
func AttachReader(p *iobuf.Pipeline, r io.Reader, readLimit int64) error {
	if err := p.Push(streamFilter, &streamCtx{r: r}, true, "stream"); err != nil {
		return err
	}
	if readLimit > 0 {
		p.SetReadLimit(readLimit)
	}
	return nil
}

// AttachWriter wraps a host io.Writer as an output pipeline's bottom stage.
func AttachWriter(p *iobuf.Pipeline, w io.Writer) error {
	return p.Push(streamFilter, &streamCtx{w: w}, true, "stream")
}

type attachOpts struct {
	printOnly bool
	keepOpen  bool
	cacheable bool
	created   bool
}

func attachFile(p *iobuf.Pipeline, f *os.File, name string, o attachOpts) error {
	ctx := &fileCtx{
		f:         f,
		name:      name,
		printOnly: o.printOnly,
		keepOpen:  o.keepOpen,
		cacheable: o.cacheable,
		created:   o.created,
	}
	return p.Push(fileFilter, ctx, true, "file")
}

// compile-time interface checks: fileCtx implements io.Closer and the
// seeker interface iobuf.Seek requires.
var (
	_ io.Closer = (*fileCtx)(nil)
	_ interface {
		Seek(int64, int) (int64, error)
	} = (*fileCtx)(nil)
)
