package assuan

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// dialTestServer starts a server on a loopback listener and returns a
// connected client plus a line reader over its responses.
func dialTestServer(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx)
	srv.Options.Logger = nil

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, bufio.NewReader(conn)
}

func request(t *testing.T, conn net.Conn, br *bufio.Reader, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	resp, err := br.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(resp, "\r\n")
}

func TestServer_Session(t *testing.T) {
	conn, br := dialTestServer(t)

	greeting, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK pgpfix ready\n", greeting)

	// GETINFO emits a data line, then OK
	resp := request(t, conn, br, "GETINFO version")
	require.Equal(t, "D "+Version, resp)
	resp, err = br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", resp)

	require.Equal(t, "OK", request(t, conn, br, "RECIPIENT alice@example.org"))
	require.Equal(t, "OK", request(t, conn, br, "SIGNER bob@example.org"))

	// command validation happens before the not-implemented stub
	resp = request(t, conn, br, "ENCRYPT")
	require.True(t, strings.HasPrefix(resp, "ERR 101"), resp)

	require.Equal(t, "OK", request(t, conn, br, "INPUT FD=0"))
	require.Equal(t, "OK", request(t, conn, br, "OUTPUT FD=1"))

	resp = request(t, conn, br, "ENCRYPT")
	require.True(t, strings.HasPrefix(resp, "ERR 100"), resp)

	resp = request(t, conn, br, "INPUT FD=banana")
	require.True(t, strings.HasPrefix(resp, "ERR 276"), resp)

	resp = request(t, conn, br, "OPTION input-size-hint=nope")
	require.True(t, strings.HasPrefix(resp, "ERR 276"), resp)
	require.Equal(t, "OK", request(t, conn, br, "OPTION input-size-hint=4096"))

	// the audit log reflects what the session did so far
	resp = request(t, conn, br, "GETAUDITLOG")
	require.True(t, strings.HasPrefix(resp, "D {"), resp)
	require.Contains(t, resp, `"recipients":1`)
	require.Contains(t, resp, `"signers":1`)
	require.Contains(t, resp, `"input":true`)
	require.Contains(t, resp, `"message":false`)
	resp, err = br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", resp)

	resp = request(t, conn, br, "FROBNICATE")
	require.True(t, strings.HasPrefix(resp, "ERR 275"), resp)

	require.Equal(t, "OK", request(t, conn, br, "RESET"))
	resp = request(t, conn, br, "ENCRYPT")
	require.True(t, strings.HasPrefix(resp, "ERR 101"), resp)

	require.Equal(t, "OK closing connection", request(t, conn, br, "BYE"))
}

func TestServer_OptionJSON(t *testing.T) {
	conn, br := dialTestServer(t)
	_, err := br.ReadString('\n') // greeting
	require.NoError(t, err)

	require.Equal(t, "OK",
		request(t, conn, br, `OPTION --json={"pinentry-mode":"loopback","offline":true}`))

	resp := request(t, conn, br, "GETAUDITLOG")
	require.Contains(t, resp, `"pinentry-mode":"loopback"`)
	require.Contains(t, resp, `"offline":"true"`)
	resp, err = br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", resp)

	resp = request(t, conn, br, "OPTION --json=[not-an-object]")
	require.True(t, strings.HasPrefix(resp, "ERR 276"), resp)
}

func TestServer_GetInfoCmdHasOption(t *testing.T) {
	conn, br := dialTestServer(t)
	_, err := br.ReadString('\n') // greeting
	require.NoError(t, err)

	require.Equal(t, "OK", request(t, conn, br, "GETINFO cmd_has_option SIGN --detached"))
	resp := request(t, conn, br, "GETINFO cmd_has_option SIGN --wings")
	require.True(t, strings.HasPrefix(resp, "ERR 276"), resp)
}

func TestServer_LineTooLong(t *testing.T) {
	conn, br := dialTestServer(t)
	_, err := br.ReadString('\n') // greeting
	require.NoError(t, err)

	resp := request(t, conn, br, "GETINFO "+strings.Repeat("x", 4000))
	require.True(t, strings.HasPrefix(resp, "ERR 105"), resp)

	// the over-long line was fully consumed; the session stays usable
	require.Equal(t, "OK closing connection", request(t, conn, br, "BYE"))
}

func TestServer_SecondServeRefused(t *testing.T) {
	srv := NewServer(context.Background())
	srv.Options.Logger = nil
	srv.started.Store(true)
	require.ErrorIs(t, srv.Serve(nil), ErrStarted)
}
