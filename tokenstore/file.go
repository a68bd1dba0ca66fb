package tokenstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadPassphrase is returned when the file cannot be decrypted with the passphrase.
var ErrBadPassphrase = errors.New("tokenstore: wrong passphrase or tampered file")

const (
	fileMagic      = "EMF1"
	fileSaltLength = 16
	minPassphrase  = 8
)

// KDFConfig tunes the argon2id key derivation of FileBackend.
type KDFConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
}

// DefaultKDF is the key derivation used when none is given.
var DefaultKDF = KDFConfig{Memory: 64 * 1024, Time: 1, Parallelism: 4}

// FileBackend keeps all entries in a single encrypted file.
//
// Layout: magic(4) | salt(16) | nonce(24) | XChaCha20-Poly1305(JSON map). The key is
// derived from the passphrase with argon2id; the salt is generated once per file.
type FileBackend struct {
	mu   sync.Mutex
	path string
	key  []byte
	salt []byte
	kdf  KDFConfig
	now  func() time.Time
}

type fileEntry struct {
	Value     []byte    `json:"v"`
	ExpiresAt time.Time `json:"e,omitempty"`
}

// NewFileBackend opens or creates the encrypted store at path.
func NewFileBackend(path, passphrase string, kdf KDFConfig) (*FileBackend, error) {
	if len(passphrase) < minPassphrase {
		return nil, fmt.Errorf("tokenstore: passphrase must be at least %d bytes", minPassphrase)
	}
	if kdf.Memory == 0 || kdf.Time == 0 || kdf.Parallelism == 0 {
		kdf = DefaultKDF
	}

	f := &FileBackend{path: path, kdf: kdf, now: time.Now}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		f.salt = make([]byte, fileSaltLength)
		if _, err := io.ReadFull(rand.Reader, f.salt); err != nil {
			return nil, err
		}
		f.key = f.derive(passphrase)
		if err := f.write(map[string]fileEntry{}); err != nil {
			return nil, err
		}
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("tokenstore: read %s: %w", path, err)
	}

	if len(raw) < len(fileMagic)+fileSaltLength || !bytes.Equal(raw[:len(fileMagic)], []byte(fileMagic)) {
		return nil, ErrCorrupt
	}
	f.salt = append([]byte(nil), raw[len(fileMagic):len(fileMagic)+fileSaltLength]...)
	f.key = f.derive(passphrase)
	if _, err := f.decrypt(raw); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileBackend) derive(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), f.salt, f.kdf.Time, f.kdf.Memory, f.kdf.Parallelism, chacha20poly1305.KeySize)
}

func (f *FileBackend) decrypt(raw []byte) (map[string]fileEntry, error) {
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, err
	}
	offset := len(fileMagic) + fileSaltLength
	if len(raw) < offset+aead.NonceSize()+aead.Overhead() {
		return nil, ErrCorrupt
	}
	nonce := raw[offset : offset+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[offset+aead.NonceSize():], raw[:offset])
	if err != nil {
		return nil, ErrBadPassphrase
	}
	entries := map[string]fileEntry{}
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, ErrCorrupt
	}
	return entries, nil
}

func (f *FileBackend) read() (map[string]fileEntry, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: read %s: %w", f.path, err)
	}
	return f.decrypt(raw)
}

func (f *FileBackend) write(entries map[string]fileEntry) error {
	plain, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	header := append([]byte(fileMagic), f.salt...)
	out := make([]byte, 0, len(header)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plain, header)

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".tokenstore-*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	e, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.ExpiresAt.IsZero() && !f.now().Before(e.ExpiresAt) {
		return nil, ErrNotFound
	}
	return e.Value, nil
}

func (f *FileBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return err
	}
	e := fileEntry{Value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.ExpiresAt = f.now().Add(ttl)
	}
	entries[key] = e
	return f.write(entries)
}

func (f *FileBackend) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(entries, k)
	}
	return f.write(entries)
}
