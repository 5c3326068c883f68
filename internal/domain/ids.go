package domain

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out unique identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random UUIDv4 identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequentialIDs generates prefix-1, prefix-2, ... and is safe for
// concurrent use. It exists for deterministic tests and fixtures.
type SequentialIDs struct {
	Prefix string
	n      atomic.Int64
}

func (s *SequentialIDs) NewID() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}
