package cli

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/frederikbeimgraben/mcssh/internal/repository"
)

func writePublicKey(t *testing.T, dir, name string) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), ssh.MarshalAuthorizedKey(sshPub), 0o644))
	return sshPub
}

func TestAuthorizeKey(t *testing.T) {
	src := t.TempDir()
	dir := filepath.Join(t.TempDir(), "keys")
	pub := writePublicKey(t, src, "alice.pub")

	dst, err := authorizeKey(dir, filepath.Join(src, "alice.pub"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.pub"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, string(ssh.MarshalAuthorizedKey(pub)), string(data))

	_, err = authorizeKey(dir, filepath.Join(src, "alice.pub"), "")
	assert.Error(t, err, "existing key must not be overwritten")

	_, err = authorizeKey(dir, filepath.Join(src, "alice.pub"), "../escape")
	assert.Error(t, err)

	dst, err = authorizeKey(dir, filepath.Join(src, "alice.pub"), "laptop")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "laptop"), dst)
}

func TestAuthorizeKeyRejectsGarbage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "bad.pub")
	require.NoError(t, os.WriteFile(src, []byte("not a key\n"), 0o644))

	_, err := authorizeKey(t.TempDir(), src, "")
	assert.Error(t, err)
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	for _, line := range []string{"list", "say hi"} {
		_, err := db.AppendHistory(ctx, "alice", line)
		require.NoError(t, err)
	}
	_, err = db.AppendHistory(ctx, "bob", "stop")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, db, &out, "alice", 10))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "list"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "say hi"), lines[1])
	assert.Contains(t, lines[0], "alice")
}

func TestSetupLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcssh.log")
	closeLog, err := setupLogging(path)
	require.NoError(t, err)
	log.Printf("[test] hello")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[test] hello")

	_, err = setupLogging(filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestFingerprintCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MCSSH_HOST_KEY", filepath.Join(dir, "host.key"))
	t.Setenv("MCSSH_SECRET_FILE", filepath.Join(dir, "missing.sec"))

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"fingerprint"})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "Fingerprint: SHA256:"), out.String())

	first := out.String()
	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"fingerprint"})
	require.NoError(t, root.Execute())
	assert.Equal(t, first, out.String())
}
