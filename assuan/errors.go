package assuan

import "errors"

var (
	// ErrStarted means the server was already started
	ErrStarted = errors.New("assuan: server already started")

	// ErrStopped means the server is done serving
	ErrStopped = errors.New("assuan: server stopped")
)

// protocol error codes, the subset this dispatcher emits
const (
	codeUnknownCmd     = 275
	codeSyntax         = 276
	codeNotImplemented = 100
	codeMissingInput   = 101
	codeMissingOutput  = 102
	codeNoRecipients   = 103
	codeNoSigners      = 104
	codeLineTooLong    = 105
)
