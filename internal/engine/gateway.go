package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/logger"
)

// DefaultTimeout bounds a single detection call unless configured otherwise.
const DefaultTimeout = 30 * time.Second

// Gateway wraps an Engine with the per-file failure policy: a slow or
// crashing engine call costs one file, never the job.
type Gateway struct {
	engine  Engine
	timeout time.Duration
}

// NewGateway wraps an engine with a per-file timeout.
// Parameters:
//   - engine: the engine to guard.
//   - timeout: per-file budget; zero or negative uses DefaultTimeout.
//
// Returns:
//   - *Gateway: initialized gateway.
func NewGateway(engine Engine, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{engine: engine, timeout: timeout}
}

// Name reports the wrapped engine's name.
func (g *Gateway) Name() string { return g.engine.Name() }

// Timeout reports the per-file budget in effect.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// Detect runs one engine call under the per-file budget and never returns
// an error: on timeout or engine failure the result is an empty match list
// with the corresponding status. Successful matches come back ranked by
// descending confidence, untouched otherwise.
//
// The call is detached from jobCtx's cancellation on purpose: cancelling a
// job stops new files from being scheduled, while a file already in flight
// keeps its full budget and finishes normally.
func (g *Gateway) Detect(jobCtx context.Context, path string) (domain.MatchList, domain.DetectionStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), g.timeout)
	defer cancel()

	start := time.Now()
	matches, err := g.engine.Detect(ctx, path)
	elapsed := time.Since(start)

	log := logger.FromContext(jobCtx).WithFields(logger.Fields{
		logger.FieldEngine:     g.engine.Name(),
		logger.FieldPath:       path,
		logger.FieldDurationMs: elapsed.Milliseconds(),
	})

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warnf("detection timed out after %s", g.timeout)
		return domain.MatchList{}, domain.DetectionTimedOut
	case err != nil:
		log.WithError(err).Warn("detection failed")
		return domain.MatchList{}, domain.DetectionError
	}

	ranked := make(domain.MatchList, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	log.Debugf("detection completed with %d matches", len(ranked))
	return ranked, domain.DetectionDone
}
