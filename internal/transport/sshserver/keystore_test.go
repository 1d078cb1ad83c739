package sshserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestLoadOrCreateHostKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.key")

	first, err := LoadOrCreateHostKey(path)
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, first.PublicKey().Type())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrCreateHostKey(path)
	require.NoError(t, err)
	assert.Equal(t, ssh.FingerprintSHA256(first.PublicKey()), ssh.FingerprintSHA256(second.PublicKey()))
}

func TestLoadOrCreateHostKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.key")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	_, err := LoadOrCreateHostKey(path)
	assert.Error(t, err)
}

func TestParseAuthorizedKeys(t *testing.T) {
	a := newClientSigner(t).PublicKey()
	b := newClientSigner(t).PublicKey()

	data := "# team keys\n" +
		string(ssh.MarshalAuthorizedKey(a)) +
		"garbage line\n\n" +
		string(ssh.MarshalAuthorizedKey(b))

	keys := ParseAuthorizedKeys("test", []byte(data))
	require.Len(t, keys, 2)
	assert.Equal(t, a.Marshal(), keys[0].Marshal())
	assert.Equal(t, b.Marshal(), keys[1].Marshal())
}

func TestKeyStoreLookup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	store, err := NewKeyStore(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	pub := newClientSigner(t).PublicKey()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob"), ssh.MarshalAuthorizedKey(pub), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), ssh.MarshalAuthorizedKey(newClientSigner(t).PublicKey()), 0o600))
	require.NoError(t, store.Reload())

	name, ok := store.Lookup(pub)
	assert.True(t, ok)
	assert.Equal(t, "bob", name)
	assert.Equal(t, 1, store.Len())

	_, ok = store.Lookup(newClientSigner(t).PublicKey())
	assert.False(t, ok)
}

func TestKeyStoreWatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewKeyStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx))

	pub := newClientSigner(t).PublicKey()
	path := filepath.Join(dir, "carol.pub")
	require.NoError(t, os.WriteFile(path, ssh.MarshalAuthorizedKey(pub), 0o600))

	assert.Eventually(t, func() bool {
		_, ok := store.Lookup(pub)
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, ok := store.Lookup(pub)
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestKeySuffix(t *testing.T) {
	assert.Equal(t, "abcdefgh", keySuffix("SHA256:xyzabcdefgh"))
	assert.Equal(t, "short", keySuffix("short"))
}
