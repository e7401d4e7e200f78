package policy

import (
	"go.uber.org/zap"

	"marketchat/internal/common"
	"marketchat/internal/config"
	"marketchat/internal/metrics"
)

// Gate is the pre-write policy check the store runs before committing a
// message: token bucket first, then spam screening. With enforcement off both
// checks only log, so a rollout cannot silently drop traffic.
type Gate struct {
	limiter *LimiterPool
	spam    *SpamFilter
	enforce bool
	log     *zap.Logger
}

func NewGate(cfg config.PolicyConfig, log *zap.Logger) *Gate {
	return &Gate{
		limiter: NewLimiterPool(cfg.Tiers),
		spam:    NewSpamFilter(cfg.SpamBlockScore, cfg.SpamSuspectScore, cfg.MaxMessageLength),
		enforce: cfg.EnforcementActive,
		log:     log,
	}
}

// CheckSend screens one outgoing message. The returned SpamResult is always
// populated so the caller can persist the audit trail for flagged and blocked
// content.
func (g *Gate) CheckSend(senderID string, tier common.Tier, content string) (SpamResult, error) {
	if err := g.limiter.Allow(senderID, tier); err != nil {
		metrics.RateLimited.Inc()
		if g.enforce {
			return SpamResult{Outcome: OutcomePass}, err
		}
		g.log.Warn("rate limit exceeded (log-only)",
			zap.String("sender_id", senderID),
			zap.String("tier", tier.String()))
	}

	res := g.spam.Score(content)
	switch res.Outcome {
	case OutcomeBlocked:
		metrics.SpamBlocked.Inc()
		if g.enforce {
			return res, common.ErrSpamRejected
		}
		g.log.Warn("spam block (log-only)",
			zap.String("sender_id", senderID),
			zap.Int("score", res.Score),
			zap.Strings("signals", res.Signals))
	case OutcomeFlagged:
		metrics.SpamFlagged.Inc()
		g.log.Info("message flagged for moderation",
			zap.String("sender_id", senderID),
			zap.Int("score", res.Score),
			zap.Strings("signals", res.Signals))
	}
	return res, nil
}
