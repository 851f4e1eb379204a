package storage

import "time"

type Snapshot struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}
