package storage

import (
	"context"
	"errors"
)

var ErrEmptyKey = errors.New("storage key is empty")

// Port is the persistence seam every store writes its snapshot through.
// Load reports ok=false when nothing was ever saved under key.
type Port interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend is a Port that owns resources.
type Backend interface {
	Port
	Close() error
}
