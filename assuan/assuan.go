// Package assuan implements a line-oriented command dispatch server: a
// request/response loop that wires external callers' file descriptors
// into iobuf pipelines and dispatches the OpenPGP service verbs. The business logic of the crypto verbs is out of scope; each verb
// validates its descriptor wiring and argument shape, then reports
// not-implemented where a real backend would take over.
package assuan

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Server accepts connections and runs one command-dispatch session per
// connection. Each session owns its own pipelines; only the Server's
// accept loop and the process-wide close cache are shared between
// sessions.
type Server struct {
	*zerolog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	Options Options     // options; do not modify after Serve()
	started atomic.Bool // true once Serve has run
}

// NewServer returns a new Server. Adjust Server.Options, then call Serve.
func NewServer(ctx context.Context) *Server {
	s := &Server{}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	s.Options = DefaultOptions
	return s
}

// Serve accepts connections on l until the server's context is cancelled,
// running each session on its own goroutine. The first session error is
// returned after all sessions finish; one session failing never tears
// down its siblings.
func (s *Server) Serve(l net.Listener) error {
	if s.started.Swap(true) {
		return ErrStarted
	}

	// process options
	opts := &s.Options
	if opts.Logger != nil {
		s.Logger = opts.Logger
	} else {
		nop := zerolog.Nop()
		s.Logger = &nop
	}

	// unblock Accept when the context goes down
	go func() {
		<-s.ctx.Done()
		l.Close()
	}()

	var g errgroup.Group
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				err = nil // ordinary shutdown
			}
			if werr := g.Wait(); werr != nil && err == nil {
				err = werr
			}
			return err
		}
		s.Debug().Str("remote", conn.RemoteAddr().String()).Msg("assuan: accepted connection")
		g.Go(func() error {
			return s.session(conn)
		})
	}
}

// Stop cancels the server: the accept loop unblocks and in-flight sessions
// see a cancelled context.
func (s *Server) Stop() {
	s.cancel(ErrStopped)
}
