package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketchat/internal/common"
	"marketchat/internal/config"
)

func testTiers() map[string]config.TierLimit {
	return map[string]config.TierLimit{
		"free": {RPS: 0.2, Burst: 3},
		"plus": {RPS: 1, Burst: 10},
		"pro":  {RPS: 5, Burst: 30},
	}
}

func TestLimiterPoolBurstThenRefusal(t *testing.T) {
	pool := NewLimiterPool(testTiers())

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Allow("alice", common.TierFree), "send %d within burst", i)
	}

	err := pool.Allow("alice", common.TierFree)
	var rl *common.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, time.Duration(0), "refusal carries advisory retry-after")
	assert.LessOrEqual(t, rl.RetryAfter, 5*time.Second, "0.2 rps refills within five seconds")
}

func TestLimiterPoolIsPerSender(t *testing.T) {
	pool := NewLimiterPool(testTiers())

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Allow("alice", common.TierFree))
	}
	require.Error(t, pool.Allow("alice", common.TierFree))

	// a different sender has an untouched bucket
	assert.NoError(t, pool.Allow("bob", common.TierFree))
}

func TestLimiterPoolTierBudgets(t *testing.T) {
	pool := NewLimiterPool(testTiers())

	// pro burst comfortably exceeds the free one
	for i := 0; i < 30; i++ {
		require.NoError(t, pool.Allow("pro-user", common.TierPro), "send %d", i)
	}
	require.Error(t, pool.Allow("pro-user", common.TierPro))

	// unknown tiers fall back to the free budget
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Allow("odd-user", common.Tier("trial")))
	}
	assert.Error(t, pool.Allow("odd-user", common.Tier("trial")))
}

func TestLimiterPoolRefusalConsumesNoToken(t *testing.T) {
	pool := NewLimiterPool(testTiers())
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Allow("alice", common.TierFree))
	}

	first := pool.Allow("alice", common.TierFree)
	second := pool.Allow("alice", common.TierFree)
	var a, b *common.RateLimitedError
	require.ErrorAs(t, first, &a)
	require.ErrorAs(t, second, &b)
	// back-to-back refusals quote the same wait, not a growing one
	assert.InDelta(t, a.RetryAfter.Seconds(), b.RetryAfter.Seconds(), 0.5)
}

func TestSpamFilterScore(t *testing.T) {
	filter := NewSpamFilter(70, 40, 200)

	tests := []struct {
		name    string
		content string
		outcome Outcome
		signal  string
	}{
		{"plain message", "Is the cabin free next weekend?", OutcomePass, ""},
		{"ordinary link passes", "Details at https://example.com/listing/42", OutcomePass, ""},
		{"single phrase alone passes", "act now before it is gone", OutcomePass, "phrase:act now"},
		{"char flood alone passes", "heyyyyyyyyyyyy", OutcomePass, "char-flood"},
		{"oversize alone passes", strings.Repeat("word ", 50), OutcomePass, "oversize"},
		{"shortener flagged", "check http://bit.ly/2xyz", OutcomeFlagged, "shortener-link"},
		{"raw ip flagged", "visit http://203.0.113.7/login", OutcomeFlagged, "raw-ip-link"},
		{"phrase plus char flood flagged", "act now!!!!!!!!!!!!", OutcomeFlagged, "char-flood"},
		{
			"link flood plus phrase flagged",
			"free money https://a.example https://b.example https://c.example https://d.example",
			OutcomeFlagged, "link-flood",
		},
		{
			"stacked signals blocked",
			"Guaranteed income! wire transfer only, http://bit.ly/2xyz",
			OutcomeBlocked, "shortener-link",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := filter.Score(tt.content)
			assert.Equal(t, tt.outcome, res.Outcome, "score %d signals %v", res.Score, res.Signals)
			if tt.signal != "" {
				assert.Contains(t, res.Signals, tt.signal)
			}
		})
	}
}

func TestSpamFilterDefaults(t *testing.T) {
	filter := NewSpamFilter(0, 0, 0)
	assert.Equal(t, 70, filter.blockScore)
	assert.Equal(t, 40, filter.suspectScore)
	assert.Equal(t, 8000, filter.maxLength)
}

func gateConfig(enforce bool) config.PolicyConfig {
	return config.PolicyConfig{
		Tiers:             testTiers(),
		SpamBlockScore:    70,
		SpamSuspectScore:  40,
		MaxMessageLength:  8000,
		EnforcementActive: enforce,
	}
}

func TestGateEnforcing(t *testing.T) {
	gate := NewGate(gateConfig(true), zap.NewNop())

	res, err := gate.CheckSend("alice", common.TierFree, "hello there")
	require.NoError(t, err)
	assert.Equal(t, OutcomePass, res.Outcome)

	res, err = gate.CheckSend("alice", common.TierFree, "guaranteed income via wire transfer http://bit.ly/2xyz")
	assert.ErrorIs(t, err, common.ErrSpamRejected)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
	assert.NotEmpty(t, res.Signals, "audit trail survives the rejection")

	for i := 0; i < 3; i++ {
		gate.CheckSend("bob", common.TierFree, "hi")
	}
	_, err = gate.CheckSend("bob", common.TierFree, "hi")
	var rl *common.RateLimitedError
	assert.ErrorAs(t, err, &rl)
}

func TestGateLogOnly(t *testing.T) {
	gate := NewGate(gateConfig(false), zap.NewNop())

	// spam and rate violations are observed but never rejected
	res, err := gate.CheckSend("alice", common.TierFree, "guaranteed income via wire transfer http://bit.ly/2xyz")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)

	for i := 0; i < 10; i++ {
		_, err := gate.CheckSend("alice", common.TierFree, "hi")
		require.NoError(t, err)
	}
}
