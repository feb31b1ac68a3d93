package assuan

import (
	"os"
	"strings"

	"github.com/spf13/cast"

	"github.com/pgpfix/pgpfix/iobuf"
	"github.com/pgpfix/pgpfix/iobuf/source"
	"github.com/pgpfix/pgpfix/json"
	"github.com/pgpfix/pgpfix/strlist"
)

// Version is the GETINFO version string.
const Version = "1.0.0"

// dispatch runs one verb. done=true ends the session cleanly; a non-nil
// error is unrecoverable for the connection.
func (sess *session) dispatch(verb, args string) (done bool, err error) {
	switch verb {
	case "OPTION":
		return false, sess.cmdOption(args)
	case "RECIPIENT":
		return false, sess.cmdRecipient(args)
	case "SIGNER":
		return false, sess.cmdSigner(args)
	case "INPUT":
		return false, sess.cmdFD(args, &sess.input, iobuf.DirInput)
	case "OUTPUT":
		return false, sess.cmdFD(args, &sess.output, iobuf.DirOutput)
	case "MESSAGE":
		return false, sess.cmdFD(args, &sess.message, iobuf.DirInput)
	case "ENCRYPT":
		return false, sess.cmdEncrypt()
	case "DECRYPT":
		return false, sess.cmdDecrypt()
	case "SIGN":
		return false, sess.cmdSign(args)
	case "VERIFY":
		return false, sess.cmdVerify()
	case "IMPORT", "EXPORT", "DELKEYS", "GENKEY", "PASSWD":
		return false, sess.cmdKeyOp(verb)
	case "LISTKEYS", "DUMPKEYS", "LISTSECRETKEYS", "DUMPSECRETKEYS":
		return false, sess.errf(codeNotImplemented, "%s requires the key backend", strings.ToLower(verb))
	case "GETAUDITLOG":
		return false, sess.cmdGetAuditLog()
	case "GETINFO":
		return false, sess.cmdGetInfo(args)
	case "RESET":
		return false, sess.cmdReset()
	case "BYE":
		return true, sess.ok("closing connection")
	default:
		return false, sess.errf(codeUnknownCmd, "unknown command %q", verb)
	}
}

// cmdOption handles "OPTION [--]name[=value]". Known numeric options are
// validated up front so a later command never trips over a junk value.
// "OPTION --json={...}" sets a whole batch of options from one JSON
// object.
func (sess *session) cmdOption(args string) error {
	name := strings.TrimPrefix(args, "--")
	name, value, _ := strings.Cut(name, "=")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return sess.errf(codeSyntax, "option name missing")
	}

	if name == "json" {
		err := json.ObjectEach([]byte(value), func(key, val []byte) error {
			sess.options[string(key)] = string(val)
			return nil
		})
		if err != nil {
			return sess.errf(codeSyntax, "bad json option block: %v", err)
		}
		return sess.ok("")
	}

	switch name {
	case "input-size-hint":
		if _, err := cast.ToInt64E(value); err != nil {
			return sess.errf(codeSyntax, "option %s wants an integer", name)
		}
	case "with-secret", "allow-pinentry-bypass", "offline":
		if value == "" {
			value = "true"
		}
		if _, err := cast.ToBoolE(value); err != nil {
			return sess.errf(codeSyntax, "option %s wants a boolean", name)
		}
	}

	sess.options[name] = value
	return sess.ok("")
}

func (sess *session) cmdRecipient(args string) error {
	if args == "" {
		return sess.errf(codeSyntax, "recipient missing")
	}
	sess.recipients = strlist.Append(sess.recipients, args)
	return sess.ok("")
}

func (sess *session) cmdSigner(args string) error {
	if args == "" {
		return sess.errf(codeSyntax, "signer missing")
	}
	sess.signers = strlist.Append(sess.signers, args)
	return sess.ok("")
}

// cmdFD handles INPUT/OUTPUT/MESSAGE: "FD=N" wraps descriptor N in a
// pipeline of the right direction, replacing whatever the slot held.
func (sess *session) cmdFD(args string, slot **iobuf.Pipeline, dir iobuf.Direction) error {
	raw, ok := strings.CutPrefix(args, "FD=")
	if !ok {
		return sess.errf(codeSyntax, "expected FD=<n>")
	}
	fd, err := cast.ToIntE(raw)
	if err != nil || fd < 0 {
		return sess.errf(codeSyntax, "bad descriptor %q", raw)
	}

	var p *iobuf.Pipeline
	if dir == iobuf.DirInput {
		p = iobuf.NewInput(iobuf.Options{Logger: sess.srv.Logger})
	} else {
		p = iobuf.NewOutput(iobuf.Options{Logger: sess.srv.Logger})
	}
	if err := source.AttachHandle(p, fd, false); err != nil {
		return sess.errf(codeSyntax, "cannot attach fd %d: %v", fd, err)
	}

	if *slot != nil {
		(*slot).Close()
	}
	*slot = p
	return sess.ok("")
}

func (sess *session) cmdEncrypt() error {
	switch {
	case sess.input == nil:
		return sess.errf(codeMissingInput, "no input descriptor")
	case sess.output == nil:
		return sess.errf(codeMissingOutput, "no output descriptor")
	case sess.recipients == nil:
		return sess.errf(codeNoRecipients, "no recipients set")
	}
	return sess.errf(codeNotImplemented, "encrypt requires the cipher backend")
}

func (sess *session) cmdDecrypt() error {
	switch {
	case sess.input == nil:
		return sess.errf(codeMissingInput, "no input descriptor")
	case sess.output == nil:
		return sess.errf(codeMissingOutput, "no output descriptor")
	}
	return sess.errf(codeNotImplemented, "decrypt requires the cipher backend")
}

func (sess *session) cmdSign(args string) error {
	switch {
	case sess.input == nil:
		return sess.errf(codeMissingInput, "no input descriptor")
	case sess.output == nil:
		return sess.errf(codeMissingOutput, "no output descriptor")
	case sess.signers == nil:
		return sess.errf(codeNoSigners, "no signers set")
	}
	_ = args // "--detached" would select the signature shape here
	return sess.errf(codeNotImplemented, "sign requires the key backend")
}

func (sess *session) cmdVerify() error {
	if sess.input == nil {
		return sess.errf(codeMissingInput, "no input descriptor")
	}
	// detached signatures additionally want MESSAGE; inline ones don't
	return sess.errf(codeNotImplemented, "verify requires the key backend")
}

func (sess *session) cmdKeyOp(verb string) error {
	return sess.errf(codeNotImplemented, "%s requires the key backend", strings.ToLower(verb))
}

// cmdGetAuditLog emits the session's bookkeeping as one JSON data line.
func (sess *session) cmdGetAuditLog() error {
	buf := append([]byte(nil), `{"served":`...)
	buf = json.Int(buf, int64(sess.served))
	buf = append(buf, `,"recipients":`...)
	buf = json.Int(buf, int64(strlist.Length(sess.recipients)))
	buf = append(buf, `,"signers":`...)
	buf = json.Int(buf, int64(strlist.Length(sess.signers)))
	buf = append(buf, `,"options":{`...)
	first := true
	for k, v := range sess.options {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = json.Ascii(buf, []byte(k))
		buf = append(buf, ':')
		buf = json.Ascii(buf, []byte(v))
	}
	buf = append(buf, `},"input":`...)
	buf = json.Bool(buf, sess.input != nil)
	buf = append(buf, `,"output":`...)
	buf = json.Bool(buf, sess.output != nil)
	buf = append(buf, `,"message":`...)
	buf = json.Bool(buf, sess.message != nil)
	buf = append(buf, '}')

	if err := sess.data(buf); err != nil {
		return err
	}
	return sess.ok("")
}

func (sess *session) cmdGetInfo(args string) error {
	what, rest, _ := strings.Cut(args, " ")
	switch what {
	case "version":
		if err := sess.data([]byte(Version)); err != nil {
			return err
		}
	case "pid":
		if err := sess.data([]byte(cast.ToString(os.Getpid()))); err != nil {
			return err
		}
	case "cmd_has_option":
		cmd, opt, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if cmd == "" || opt == "" {
			return sess.errf(codeSyntax, "usage: GETINFO cmd_has_option CMD OPT")
		}
		if !cmdHasOption(strings.ToUpper(cmd), strings.ToLower(opt)) {
			return sess.errf(codeSyntax, "option not supported")
		}
	default:
		return sess.errf(codeSyntax, "unknown GETINFO item %q", what)
	}
	return sess.ok("")
}

// cmdHasOption says which per-command options the dispatcher understands.
func cmdHasOption(cmd, opt string) bool {
	switch cmd {
	case "SIGN":
		return opt == "--detached"
	case "IMPORT":
		return opt == "--reimport"
	}
	return false
}

// cmdReset drops all per-session state but keeps the connection.
func (sess *session) cmdReset() error {
	for _, slot := range []**iobuf.Pipeline{&sess.input, &sess.output, &sess.message} {
		if *slot != nil {
			(*slot).Close()
			*slot = nil
		}
	}
	strlist.Wipe(sess.signers) // signer lists can name secret keys
	sess.recipients = nil
	sess.signers = nil
	sess.options = make(map[string]string)
	return sess.ok("")
}
