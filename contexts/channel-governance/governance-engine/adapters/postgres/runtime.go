package postgresadapter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemClock reads UTC wall time at the one-second resolution both SQL
// stores persist, so in-memory and reloaded polls compare equal.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// UUIDGenerator issues the command ids attached to governance log records.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
