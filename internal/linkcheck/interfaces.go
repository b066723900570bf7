package linkcheck

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Prober checks a single link. Implementations never return errors; every
// failure mode is reported through the Result status.
type Prober interface {
	Probe(ctx context.Context, target Target, pageURL string) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, target Target, pageURL string) Result

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, target Target, pageURL string) Result {
	return f(ctx, target, pageURL)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
