// Package seal encrypts the payloads written to the local store. Values are
// encoded as CBOR and encrypted with age to the daemon's own X25519
// identity, which lives in a root-only key file.
package seal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Sealer encrypts to, and decrypts with, a single age identity.
type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// Generate returns a sealer with a fresh identity.
func Generate() (*Sealer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	return &Sealer{identity: identity, recipient: identity.Recipient()}, nil
}

// Parse returns a sealer for an identity in AGE-SECRET-KEY-1... form.
func Parse(key string) (*Sealer, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &Sealer{identity: identity, recipient: identity.Recipient()}, nil
}

// LoadOrCreate reads the identity at path, generating and writing a new one
// with mode 0600 if the file does not exist.
func LoadOrCreate(path string) (*Sealer, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		return Parse(string(b))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	s, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	if _, err := fmt.Fprintln(f, s.identity.String()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return s, nil
}

// Recipient returns the public half of the identity, in age1... form.
func (s *Sealer) Recipient() string {
	return s.recipient.String()
}

// Seal encodes v and encrypts it.
func (s *Sealer) Seal(v any) ([]byte, error) {
	plaintext, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts data and decodes it into v.
func (s *Sealer) Open(data []byte, v any) error {
	r, err := age.Decrypt(bytes.NewReader(data), s.identity)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading decrypted payload: %w", err)
	}
	if err := Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
