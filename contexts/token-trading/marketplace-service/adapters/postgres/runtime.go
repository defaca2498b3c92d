package postgresadapter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemClock truncates to microseconds, the precision postgres keeps.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// UUIDGenerator issues time-ordered UUIDv7 event ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
