package policy

import (
	"regexp"
	"strings"
)

// Outcome of a spam screen.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFlagged Outcome = "flagged" // suspicious band: write allowed, queued for review
	OutcomeBlocked Outcome = "blocked"
)

// SpamResult is the scored verdict for one message.
type SpamResult struct {
	Score   int
	Signals []string
	Outcome Outcome
}

var (
	shortenerLinkRe = regexp.MustCompile(`(?i)https?://(?:bit\.ly|tinyurl\.com|t\.co|goo\.gl|is\.gd|cutt\.ly)/\S+`)
	rawIPLinkRe     = regexp.MustCompile(`https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	anyLinkRe       = regexp.MustCompile(`(?i)https?://\S+`)
	repeatedCharRe  = regexp.MustCompile(`(.)\1{9,}`)
)

var spamPhrases = []string{
	"free money",
	"guaranteed income",
	"work from home",
	"act now",
	"wire transfer",
	"western union",
	"crypto giveaway",
	"double your",
	"winner winner",
	"claim your prize",
}

// SpamFilter scores messages for spam signals. Thresholds come from config so
// they can be tuned without a deploy.
type SpamFilter struct {
	blockScore   int
	suspectScore int
	maxLength    int
}

func NewSpamFilter(blockScore, suspectScore, maxLength int) *SpamFilter {
	if blockScore <= 0 {
		blockScore = 70
	}
	if suspectScore <= 0 {
		suspectScore = 40
	}
	if maxLength <= 0 {
		maxLength = 8000
	}
	return &SpamFilter{blockScore: blockScore, suspectScore: suspectScore, maxLength: maxLength}
}

// Score evaluates one message body.
func (f *SpamFilter) Score(content string) SpamResult {
	var res SpamResult
	lower := strings.ToLower(content)

	if shortenerLinkRe.MatchString(content) {
		res.Score += 40
		res.Signals = append(res.Signals, "shortener-link")
	}
	if rawIPLinkRe.MatchString(content) {
		res.Score += 40
		res.Signals = append(res.Signals, "raw-ip-link")
	}
	if n := len(anyLinkRe.FindAllString(content, -1)); n >= 4 {
		res.Score += 30
		res.Signals = append(res.Signals, "link-flood")
	}
	if repeatedCharRe.MatchString(content) {
		res.Score += 30
		res.Signals = append(res.Signals, "char-flood")
	}
	if len(content) > f.maxLength {
		res.Score += 30
		res.Signals = append(res.Signals, "oversize")
	}
	for _, phrase := range spamPhrases {
		if strings.Contains(lower, phrase) {
			res.Score += 25
			res.Signals = append(res.Signals, "phrase:"+phrase)
		}
	}

	switch {
	case res.Score >= f.blockScore:
		res.Outcome = OutcomeBlocked
	case res.Score >= f.suspectScore:
		res.Outcome = OutcomeFlagged
	default:
		res.Outcome = OutcomePass
	}
	return res
}
