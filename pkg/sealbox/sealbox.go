// Package sealbox encrypts values for a recipient that publishes a
// Curve25519 public key, the format GitHub uses for Actions secrets.
//
// Sealing uses the anonymous sealed-box construction: an ephemeral sender
// keypair is generated per message and its public half is prepended to the
// ciphertext, so only the recipient's private key can open it.
package sealbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const KeySize = 32

// ErrSealing is returned when key material is malformed or sealing fails.
var ErrSealing = errors.New("sealing error")

type PublicKey struct {
	ID  string
	key [KeySize]byte
}

// ParsePublicKey decodes a standard base64 public key as published by the
// destination platform together with its key identifier.
func ParsePublicKey(id, encoded string) (PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: public key %q is not valid base64: %w", ErrSealing, id, err)
	}
	if len(raw) != KeySize {
		return PublicKey{}, fmt.Errorf("%w: public key %q has %d bytes, want %d", ErrSealing, id, len(raw), KeySize)
	}
	pk := PublicKey{ID: id}
	copy(pk.key[:], raw)
	return pk, nil
}

func NewPublicKey(id string, key *[KeySize]byte) PublicKey {
	return PublicKey{ID: id, key: *key}
}

func (k PublicKey) IsZero() bool {
	return k.key == [KeySize]byte{}
}

type Sealed struct {
	KeyID      string
	Ciphertext []byte
}

// EncryptedValue is the base64 form expected by secret write endpoints.
func (s Sealed) EncryptedValue() string {
	return base64.StdEncoding.EncodeToString(s.Ciphertext)
}

// Seal encrypts plaintext to key. It does not retain or log plaintext.
func Seal(plaintext []byte, key PublicKey) (Sealed, error) {
	return sealWith(rand.Reader, plaintext, key)
}

func sealWith(random io.Reader, plaintext []byte, key PublicKey) (Sealed, error) {
	if key.IsZero() {
		return Sealed{}, fmt.Errorf("%w: empty public key", ErrSealing)
	}
	out, err := box.SealAnonymous(nil, plaintext, &key.key, random)
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: %w", ErrSealing, err)
	}
	return Sealed{KeyID: key.ID, Ciphertext: out}, nil
}
