package policy

import (
	"sync"

	"golang.org/x/time/rate"

	"marketchat/internal/common"
	"marketchat/internal/config"
)

// LimiterPool holds one token bucket per sender, sized by subscription tier.
// Buckets are created lazily on first send.
type LimiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	tiers map[string]config.TierLimit
}

func NewLimiterPool(tiers map[string]config.TierLimit) *LimiterPool {
	return &LimiterPool{
		m:     make(map[string]*rate.Limiter),
		tiers: tiers,
	}
}

func (p *LimiterPool) get(senderID string, tier common.Tier) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[senderID]; ok {
		return l
	}
	limit, ok := p.tiers[tier.String()]
	if !ok {
		limit = p.tiers[common.TierFree.String()]
	}
	rps := limit.RPS
	if rps <= 0 {
		rps = 0.2
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 5
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[senderID] = l
	return l
}

// Allow consumes one token for the sender. On refusal it returns a
// RateLimitedError carrying the advisory retry-after; no token is consumed.
func (p *LimiterPool) Allow(senderID string, tier common.Tier) error {
	r := p.get(senderID, tier).Reserve()
	if !r.OK() {
		return &common.RateLimitedError{RetryAfter: 0}
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return &common.RateLimitedError{RetryAfter: delay}
	}
	return nil
}
