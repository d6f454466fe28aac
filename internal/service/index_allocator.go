package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// IndexSequence yields monotonically increasing values.
type IndexSequence interface {
	NextIndexSequence(ctx context.Context) (int64, error)
}

// IndexAllocator hands out permanent student index numbers. Implementations must never
// return the same number twice.
type IndexAllocator interface {
	Allocate(ctx context.Context, seq IndexSequence, student *models.Student) (string, error)
}

// SequenceIndexAllocator formats values drawn from the database sequence.
type SequenceIndexAllocator struct {
	Prefix string
}

// Allocate implements IndexAllocator.
func (a SequenceIndexAllocator) Allocate(ctx context.Context, seq IndexSequence, _ *models.Student) (string, error) {
	next, err := seq.NextIndexSequence(ctx)
	if err != nil {
		return "", err
	}
	prefix := a.Prefix
	if prefix == "" {
		prefix = "IDX"
	}
	return fmt.Sprintf("%s-%06d", prefix, next), nil
}
