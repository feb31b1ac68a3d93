package assuan

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pgpfix/pgpfix/iobuf"
	"github.com/pgpfix/pgpfix/iobuf/source"
	"github.com/pgpfix/pgpfix/strlist"
)

// session is the per-connection dispatch state: the request/response
// pipelines over the connection itself, plus the three descriptor slots
// (input, output, message) set by their verbs before a command runs.
type session struct {
	srv  *Server
	conn net.Conn

	in  *iobuf.Pipeline // request lines
	out *iobuf.Pipeline // status lines

	lim *rate.Limiter

	recipients *strlist.Node
	signers    *strlist.Node
	options    map[string]string

	input   *iobuf.Pipeline // INPUT FD slot
	output  *iobuf.Pipeline // OUTPUT FD slot
	message *iobuf.Pipeline // MESSAGE FD slot

	served int // commands dispatched, for GETAUDITLOG
	failed bool
}

// session runs the request loop for one connection. A panic out of a
// dispatch handler (a pipeline misuse bug) is contained to this session.
func (s *Server) session(conn net.Conn) (err error) {
	sess := &session{
		srv:     s,
		conn:    conn,
		options: make(map[string]string),
	}
	if s.Options.ReqsPerSec > 0 {
		burst := s.Options.Burst
		if burst < 1 {
			burst = 1
		}
		sess.lim = rate.NewLimiter(rate.Limit(s.Options.ReqsPerSec), burst)
	}

	defer func() {
		if r := recover(); r != nil {
			s.Error().Any("panic", r).Msg("assuan: session panicked")
			err = fmt.Errorf("assuan: session panic: %v", r)
		}
		sess.close()
	}()

	sess.in = iobuf.NewInput(iobuf.Options{Logger: s.Logger})
	if err := source.AttachSocket(sess.in, conn, false); err != nil {
		return err
	}
	sess.out = iobuf.NewOutput(iobuf.Options{Logger: s.Logger})
	if err := source.AttachSocket(sess.out, conn, true); err != nil {
		return err
	}

	if err := sess.ok("pgpfix ready"); err != nil {
		return err
	}

	for {
		if sess.lim != nil {
			if err := sess.lim.Wait(s.ctx); err != nil {
				return nil // server shutting down
			}
		}

		line, err := sess.in.ReadLine(s.Options.LineMax)
		switch {
		case iobuf.ErrLineTruncated(err):
			if werr := sess.errf(codeLineTooLong, "line too long"); werr != nil {
				return werr
			}
			continue
		case err != nil:
			return nil // peer went away
		}

		verb, args := splitLine(line)
		if verb == "" {
			continue
		}

		s.Debug().Str("verb", verb).Msg("assuan: dispatching")
		sess.served++
		done, err := sess.dispatch(verb, args)
		if err != nil {
			sess.failure(err)
			return err
		}
		if done {
			return nil
		}
	}
}

// splitLine parses "VERB [args]" out of a raw request line.
func splitLine(line []byte) (verb, args string) {
	t := strings.TrimRight(string(line), "\r\n")
	verb, args, _ = strings.Cut(t, " ")
	return strings.ToUpper(verb), strings.TrimSpace(args)
}

// close releases the fd slots and the connection pipelines, in that order.
func (sess *session) close() {
	for _, p := range []*iobuf.Pipeline{sess.input, sess.output, sess.message} {
		if p != nil {
			p.Close()
		}
	}
	if sess.out != nil {
		sess.out.Close()
	}
	if sess.in != nil {
		sess.in.Close()
	}
}

// writeLine emits one response line and flushes it to the peer.
func (sess *session) writeLine(line string) error {
	if _, err := sess.out.WriteString(line + "\n"); err != nil {
		return err
	}
	return sess.out.Flush()
}

func (sess *session) ok(msg string) error {
	if msg == "" {
		return sess.writeLine("OK")
	}
	return sess.writeLine("OK " + msg)
}

func (sess *session) errf(code int, format string, a ...any) error {
	return sess.writeLine("ERR " + strconv.Itoa(code) + " " + fmt.Sprintf(format, a...))
}

// status emits an "S keyword args" status line.
func (sess *session) status(keyword, args string) error {
	if args == "" {
		return sess.writeLine("S " + keyword)
	}
	return sess.writeLine("S " + keyword + " " + args)
}

// data emits a "D payload" data line.
func (sess *session) data(payload []byte) error {
	return sess.writeLine("D " + string(payload))
}

// failure emits the FAILURE status at most once per session, right
// before the session tears down.
func (sess *session) failure(err error) {
	if sess.failed {
		return
	}
	sess.failed = true
	_ = sess.status("FAILURE", err.Error())
}
