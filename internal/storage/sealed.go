package storage

import (
	"context"
	"fmt"

	"formgenie/internal/crypto"
)

// Sealed encrypts snapshots at rest. Values written before sealing was enabled
// are returned as-is and get sealed on their next save.
type Sealed struct {
	next Port
	ring *crypto.KeyRing
}

func NewSealed(next Port, ring *crypto.KeyRing) *Sealed {
	return &Sealed{next: next, ring: ring}
}

var _ Port = (*Sealed)(nil)

func (s *Sealed) Load(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.next.Load(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if !crypto.IsSealed(raw) {
		return raw, true, nil
	}
	plain, err := s.ring.Open(raw)
	if err != nil {
		return nil, false, fmt.Errorf("open sealed %s: %w", key, err)
	}
	return plain, true, nil
}

func (s *Sealed) Save(ctx context.Context, key string, value []byte) error {
	sealed, err := s.ring.Seal(value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.next.Save(ctx, key, sealed)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

// Rekey re-encrypts the given keys under the ring's current key, sealing any
// legacy plaintext along the way. Missing keys are skipped.
func (s *Sealed) Rekey(ctx context.Context, keys ...string) (int, error) {
	n := 0
	for _, key := range keys {
		raw, ok, err := s.next.Load(ctx, key)
		if err != nil {
			return n, fmt.Errorf("load %s: %w", key, err)
		}
		if !ok {
			continue
		}
		var next []byte
		if crypto.IsSealed(raw) {
			next, err = s.ring.Reseal(raw)
		} else {
			next, err = s.ring.Seal(raw)
		}
		if err != nil {
			return n, fmt.Errorf("rekey %s: %w", key, err)
		}
		if err := s.next.Save(ctx, key, next); err != nil {
			return n, fmt.Errorf("save %s: %w", key, err)
		}
		n++
	}
	return n, nil
}
