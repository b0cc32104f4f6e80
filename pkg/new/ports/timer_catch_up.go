package ports

import (
	"context"
	"log"
	"time"
)

type HandlerCatchUp interface {
	CatchUpAll(ctx context.Context) error
}

// CatchUpTimer periodically crawls every feed to recover entries which hubs
// failed to deliver.
type CatchUpTimer struct {
	handler  HandlerCatchUp
	interval time.Duration
}

func NewCatchUpTimer(handler HandlerCatchUp, interval time.Duration) *CatchUpTimer {
	return &CatchUpTimer{handler: handler, interval: interval}
}

// Run returns immediately if the interval isn't positive.
func (h *CatchUpTimer) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}

	for {
		select {
		case <-time.After(h.interval):
		case <-ctx.Done():
			return
		}

		if err := h.handler.CatchUpAll(ctx); err != nil {
			log.Printf("[ERROR] error catching up on feeds: %s", err)
		}
	}
}
