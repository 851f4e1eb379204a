package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// sealedPrefix marks snapshots written by a KeyRing so plaintext written
// before sealing was enabled can still be told apart.
var sealedPrefix = []byte("sealed:v1:")

var ErrNotSealed = errors.New("value is not sealed")

type Envelope struct {
	KeyID      string `json:"key_id"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type KeyRing struct {
	currentKeyID string
	keys         map[string][]byte
}

func NewKeyRing(currentKeyID string, keys map[string][]byte) (*KeyRing, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys map is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	cp := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		buf := make([]byte, len(key))
		copy(buf, key)
		cp[id] = buf
	}
	return &KeyRing{currentKeyID: currentKeyID, keys: cp}, nil
}

func (r *KeyRing) CurrentKeyID() string {
	return r.currentKeyID
}

func (r *KeyRing) encrypt(plaintext []byte) (Envelope, error) {
	aead, err := newAEAD(r.keys[r.currentKeyID])
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("nonce: %w", err)
	}
	return Envelope{
		KeyID:      r.currentKeyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}, nil
}

func (r *KeyRing) decrypt(env Envelope) ([]byte, error) {
	key, ok := r.keys[env.KeyID]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", env.KeyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Seal encrypts a snapshot with the current key.
func (r *KeyRing) Seal(plaintext []byte) ([]byte, error) {
	env, err := r.encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return append(append([]byte{}, sealedPrefix...), b...), nil
}

// Open decrypts a value produced by Seal with whichever known key sealed it.
func (r *KeyRing) Open(sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal(sealed[len(sealedPrefix):], &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return r.decrypt(env)
}

// Reseal re-encrypts a sealed value under the current key.
func (r *KeyRing) Reseal(sealed []byte) ([]byte, error) {
	plain, err := r.Open(sealed)
	if err != nil {
		return nil, err
	}
	return r.Seal(plain)
}

func IsSealed(b []byte) bool {
	return bytes.HasPrefix(b, sealedPrefix)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
