package queue

import (
	"context"
	"time"

	"github.com/clinicdesk/navbat/pkg/logging"
)

type purgeService interface {
	ClearOld(ctx context.Context, days int) (int, error)
}

// Purger periodically removes terminal entries older than the retention
// window, so history stays bounded without anyone remembering to hit the
// clear-old endpoint.
type Purger struct {
	svc      purgeService
	days     int
	interval time.Duration
	logger   *logging.Logger
}

func NewPurger(svc purgeService, days int, logger *logging.Logger) *Purger {
	if logger == nil {
		logger = logging.Default()
	}
	if days < 1 {
		days = 30
	}
	return &Purger{
		svc:      svc,
		days:     days,
		interval: 12 * time.Hour,
		logger:   logger,
	}
}

func (p *Purger) WithInterval(d time.Duration) *Purger {
	if d > 0 {
		p.interval = d
	}
	return p
}

// Run sweeps once immediately, then on every tick until the context ends.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Purger) sweep(ctx context.Context) {
	if _, err := p.svc.ClearOld(ctx, p.days); err != nil {
		p.logger.Error("retention purge failed", "error", err)
	}
}
