package router

import (
	"strings"

	"groupbot/internal/config"
)

// triggerTable resolves exact (case-insensitive) phrase matches to replies.
// The rule list is immutable after construction; the first matching rule
// wins.
type triggerTable struct {
	rules     []config.TriggerRule
	randFloat func() float64
	randIntN  func(int) int
}

func newTriggerTable(rules []config.TriggerRule, randFloat func() float64, randIntN func(int) int) *triggerTable {
	return &triggerTable{rules: rules, randFloat: randFloat, randIntN: randIntN}
}

// match returns the reply for the first rule containing the phrase, if any.
func (t *triggerTable) match(text string) (string, bool) {
	phrase := strings.ToLower(strings.TrimSpace(text))
	for _, rule := range t.rules {
		for _, p := range rule.Phrases {
			if strings.ToLower(p) == phrase {
				return t.pick(rule), true
			}
		}
	}
	return "", false
}

// pick chooses a reply: the rare reply with its configured probability when
// present, otherwise uniform among the common replies.
func (t *triggerTable) pick(rule config.TriggerRule) string {
	if rule.RareReply != "" && t.randFloat() < rule.RareChance {
		return rule.RareReply
	}
	if len(rule.Replies) == 1 {
		return rule.Replies[0]
	}
	return rule.Replies[t.randIntN(len(rule.Replies))]
}
