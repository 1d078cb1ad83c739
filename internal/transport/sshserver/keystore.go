package sshserver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/ssh"
)

// KeyStore holds the accepted client keys, loaded from a directory of
// authorized_keys files.
type KeyStore struct {
	dir string

	mu   sync.RWMutex
	keys map[string]string // SHA256 fingerprint -> source file
}

// NewKeyStore loads every file in dir, creating dir when it is missing.
func NewKeyStore(dir string) (*KeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	k := &KeyStore{dir: dir, keys: make(map[string]string)}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Dir returns the watched directory.
func (k *KeyStore) Dir() string { return k.dir }

// Reload replaces the key set with the current directory contents.
func (k *KeyStore) Reload() error {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return fmt.Errorf("failed to read key directory: %w", err)
	}

	keys := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(k.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[keys] Failed to read %s: %v", path, err)
			continue
		}
		for _, pub := range ParseAuthorizedKeys(path, data) {
			keys[ssh.FingerprintSHA256(pub)] = entry.Name()
		}
	}

	k.mu.Lock()
	k.keys = keys
	k.mu.Unlock()
	log.Printf("[keys] Loaded %d authorized keys from %s", len(keys), k.dir)
	return nil
}

// ParseAuthorizedKeys parses authorized_keys lines. Unparsable lines are
// logged with source and skipped.
func ParseAuthorizedKeys(source string, data []byte) []ssh.PublicKey {
	var out []ssh.PublicKey
	scanner := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		pub, _, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			log.Printf("[keys] Skipping %s:%d: %v", source, n, err)
			continue
		}
		out = append(out, pub)
	}
	return out
}

// Lookup reports whether pub is authorized and the file it came from.
func (k *KeyStore) Lookup(pub ssh.PublicKey) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	name, ok := k.keys[ssh.FingerprintSHA256(pub)]
	return name, ok
}

// Len returns the number of authorized keys.
func (k *KeyStore) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Watch reloads the store whenever the directory changes, until ctx is
// done.
func (k *KeyStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(k.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if err := k.Reload(); err != nil {
						log.Printf("[keys] Reload failed: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[keys] Watch error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// keySuffix returns the last 8 characters of a fingerprint for logging.
func keySuffix(fingerprint string) string {
	if len(fingerprint) <= 8 {
		return fingerprint
	}
	return fingerprint[len(fingerprint)-8:]
}
