package agent

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// pacer limits the request rate of one backend. A nil limiter never blocks.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(perSecond float64) pacer {
	if perSecond <= 0 {
		return pacer{}
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (p pacer) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return outcome.Wrap(outcome.TransientFailure, err, "rate limiter")
	}
	return nil
}
