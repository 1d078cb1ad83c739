package sshserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
	"github.com/frederikbeimgraben/mcssh/internal/hub"
	"github.com/frederikbeimgraben/mcssh/internal/service"
)

type stubCommander struct {
	mu    sync.Mutex
	users []string
}

func (c *stubCommander) Execute(ctx context.Context, user, line string) (service.Result, error) {
	cmd, ok := service.Parse(line)
	if !ok {
		return service.Result{}, service.ErrEmpty
	}
	c.mu.Lock()
	c.users = append(c.users, user)
	c.mu.Unlock()
	if cmd.Raw == "stop" {
		return service.Result{Command: cmd}, service.ErrForbidden
	}
	return service.Result{Command: cmd, Message: "sent: " + cmd.Payload}, nil
}

func (c *stubCommander) Highlight(buffer string) domain.Class { return domain.ClassNone }

func (c *stubCommander) Completions(ctx context.Context, prefix string, history []string) []string {
	return []string{prefix}
}

func (c *stubCommander) HistoryLines(ctx context.Context, user string, limit int) []string {
	return nil
}

func newClientSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

type testServer struct {
	addr   string
	server *Server
	hub    *hub.Hub
	client ssh.Signer
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	hostKey, err := LoadOrCreateHostKey(filepath.Join(dir, "host.key"))
	require.NoError(t, err)

	client := newClientSigner(t)
	keyDir := filepath.Join(dir, "keys")
	require.NoError(t, os.MkdirAll(keyDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(keyDir, "alice.pub"), ssh.MarshalAuthorizedKey(client.PublicKey()), 0o600))

	keys, err := NewKeyStore(keyDir)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts := &testServer{
		addr:   l.Addr().String(),
		hub:    hub.NewHub(10),
		client: client,
		done:   make(chan error, 1),
	}
	ts.server = NewServer(hostKey, keys, &stubCommander{}, ts.hub, Options{ServerVersion: "SSH-2.0-mcssh-test"})

	ctx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	go func() { ts.done <- ts.server.Serve(ctx, l) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = ts.server.Shutdown(shutdownCtx)
	})
	return ts
}

func (ts *testServer) dial(t *testing.T, signer ssh.Signer) (*ssh.Client, error) {
	t.Helper()
	return ssh.Dial("tcp", ts.addr, &ssh.ClientConfig{
		User:            "alice",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
}

func TestServerExec(t *testing.T) {
	ts := startServer(t)
	client, err := ts.dial(t, ts.client)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "SSH-2.0-mcssh-test", string(client.ServerVersion()))

	sess, err := client.NewSession()
	require.NoError(t, err)
	out, err := sess.Output("list")
	require.NoError(t, err)
	assert.Equal(t, "sent: list\n", string(out))

	sess, err = client.NewSession()
	require.NoError(t, err)
	_, err = sess.Output("stop")
	var exitErr *ssh.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 1, exitErr.ExitStatus())
}

func TestServerRejectsUnknownKey(t *testing.T) {
	ts := startServer(t)
	_, err := ts.dial(t, newClientSigner(t))
	require.Error(t, err)
}

func TestServerRejectsNonSessionChannels(t *testing.T) {
	ts := startServer(t)
	client, err := ts.dial(t, ts.client)
	require.NoError(t, err)
	defer client.Close()

	_, _, err = client.OpenChannel("direct-tcpip", nil)
	var openErr *ssh.OpenChannelError
	require.True(t, errors.As(err, &openErr), "got %v", err)
	assert.Equal(t, ssh.Prohibited, openErr.Reason)
}

func TestServerAnswersMalformedRequests(t *testing.T) {
	ts := startServer(t)
	client, err := ts.dial(t, ts.client)
	require.NoError(t, err)
	defer client.Close()

	ch, reqs, err := client.OpenChannel("session", nil)
	require.NoError(t, err)
	defer ch.Close()
	go ssh.DiscardRequests(reqs)

	ok, err := ch.SendRequest("window-change", true, []byte{0, 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ch.SendRequest("pty-req", true, []byte{0, 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ch.SendRequest("window-change", true, ssh.Marshal(&windowChange{Width: 100, Height: 30}))
	require.NoError(t, err)
	assert.True(t, ok)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServerInteractiveShell(t *testing.T) {
	ts := startServer(t)
	ts.hub.Publish("2024-01-01 10:00:00 INFO : server started")

	client, err := ts.dial(t, ts.client)
	require.NoError(t, err)
	defer client.Close()

	sess, err := client.NewSession()
	require.NoError(t, err)
	require.NoError(t, sess.RequestPty("xterm", 24, 80, ssh.TerminalModes{}))

	stdin, err := sess.StdinPipe()
	require.NoError(t, err)
	var stdout lockedBuffer
	sess.Stdout = &stdout
	require.NoError(t, sess.Shell())

	assert.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "server started")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return ts.server.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.WindowChange(40, 120))

	ts.hub.Publish("2024-01-01 10:00:01 INFO : player joined")
	assert.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "player joined")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = stdin.Write([]byte("exit\r"))
	require.NoError(t, err)
	require.NoError(t, sess.Wait())
	assert.Eventually(t, func() bool { return ts.server.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServerShutdown(t *testing.T) {
	ts := startServer(t)
	client, err := ts.dial(t, ts.client)
	require.NoError(t, err)
	defer client.Close()

	ts.cancel()
	select {
	case err := <-ts.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, ts.server.Shutdown(ctx))
}
