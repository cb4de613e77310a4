package ipc

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gildo/accentd/internal/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger, err := logging.New(logging.DefaultConfig())
	require.NoError(t, err)

	server, err := NewServer(filepath.Join(t.TempDir(), "accentd.sock"), false, logger)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	go server.Serve()
	return server
}

// TestMalformedLineGetsErrorReplyConnectionStaysOpen sends garbage
// followed by a well-formed message on the same connection: the daemon
// must reply with a parse_error Error for the first line without closing
// the socket, then answer the second line normally.
func TestMalformedLineGetsErrorReplyConnectionStaysOpen(t *testing.T) {
	server := newTestServer(t)
	go func() {
		for in := range server.Inbound() {
			in.Reply(Ok())
		}
	}()

	conn, err := net.DialTimeout("unix", server.path, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	reply, err := Decode(r)
	require.NoError(t, err)
	require.Equal(t, TypeError, reply.Type)
	require.Equal(t, ErrParseError, reply.Kind)

	require.NoError(t, Encode(conn, Message{Type: TypeGetStatus}))
	reply, err = Decode(r)
	require.NoError(t, err)
	require.Equal(t, TypeOk, reply.Type)
}
