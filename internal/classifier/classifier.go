package classifier

import (
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"cookietrail/services/recorder/internal/cookie"
)

type Category string

const (
	CategoryFunctional      Category = "Functional"
	CategoryAnalytics       Category = "Analytics"
	CategoryMarketing       Category = "Marketing"
	CategorySecurity        Category = "Security"
	CategoryPersonalization Category = "Personalization"
	CategoryNecessary       Category = "Necessary"
	CategoryUnknown         Category = "Unknown"
)

var knownCategories = []Category{
	CategoryFunctional,
	CategoryAnalytics,
	CategoryMarketing,
	CategorySecurity,
	CategoryPersonalization,
	CategoryNecessary,
	CategoryUnknown,
}

// ParseCategory maps a reference-database category label onto the closed
// category set. Unrecognized labels become Unknown.
func ParseCategory(value string) Category {
	trimmed := strings.TrimSpace(value)
	for _, category := range knownCategories {
		if strings.EqualFold(trimmed, string(category)) {
			return category
		}
	}
	return CategoryUnknown
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is a cookie identity together with its classification.
type Result struct {
	cookie.Identity
	Category   Category   `json:"category"`
	Confidence Confidence `json:"confidence"`
	Score      int        `json:"score"`
	Entry      *Entry     `json:"cookieDbEntry,omitempty"`
}

type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

type snapshot struct {
	state State
	kb    *KnowledgeBase
	err   error
}

// Classifier scores identities against the installed knowledge base. Until a
// knowledge base is installed every identity classifies as Unknown/low.
type Classifier struct {
	weights Weights
	current atomic.Pointer[snapshot]
}

func New(weights Weights) *Classifier {
	c := &Classifier{weights: weights}
	c.current.Store(&snapshot{state: StatePending})
	return c
}

func (c *Classifier) Weights() Weights {
	return c.weights
}

// Install publishes the knowledge base to all subsequent Classify calls.
func (c *Classifier) Install(kb *KnowledgeBase) {
	c.current.Store(&snapshot{state: StateReady, kb: kb})
}

// Fail records a terminal load failure. Classification keeps working against
// an empty reference set.
func (c *Classifier) Fail(err error) {
	c.current.Store(&snapshot{state: StateFailed, err: err})
}

// Status reports the load state, the number of reference entries, and the
// load error if the state is failed.
func (c *Classifier) Status() (State, int, error) {
	current := c.current.Load()
	return current.state, current.kb.Len(), current.err
}

func (c *Classifier) Classify(id cookie.Identity) Result {
	unknown := Result{Identity: id, Category: CategoryUnknown, Confidence: ConfidenceLow}

	kb := c.current.Load().kb
	if kb.Len() == 0 {
		return unknown
	}

	name := cookie.NormalizeCookieName(id.Name)
	if name == "" {
		return unknown
	}
	domain := cookie.NormalizeDomain(id.Domain)

	bestIndex := -1
	bestScore := 0
	for index := range kb.entries {
		score := c.score(name, domain, &kb.entries[index])
		if score > bestScore {
			bestIndex = index
			bestScore = score
		}
	}

	if bestIndex < 0 {
		return unknown
	}

	entry := kb.entries[bestIndex].entry
	return Result{
		Identity:   id,
		Category:   ParseCategory(entry.Category),
		Confidence: c.weights.confidence(bestScore),
		Score:      bestScore,
		Entry:      &entry,
	}
}

func (c *Classifier) score(name, domain string, candidate *compiledEntry) int {
	if candidate.name == "" {
		return 0
	}

	nameScore := c.scoreName(name, candidate)
	if nameScore == 0 {
		return 0
	}

	var domainScore int
	if candidate.domain != "" {
		switch {
		case domain == "":
			domainScore = c.weights.DomainUnknown
		case domain == candidate.domain:
			domainScore = c.weights.DomainExact
		case cookie.IsSubdomainOf(domain, candidate.domain):
			domainScore = c.weights.DomainSubdomain
		default:
			return 0
		}
	} else if domain != "" {
		domainScore = c.weights.GenericWithDomain
	} else {
		domainScore = c.weights.GenericWithoutDomain
	}

	return nameScore + domainScore
}

// scoreName applies exact, wildcard and prefix matching in that order.
// The prefix rule also matches unrelated cookies sharing a leading run of
// NamePrefixMinLength or more characters.
func (c *Classifier) scoreName(name string, candidate *compiledEntry) int {
	if name == candidate.name {
		return c.weights.NameExact
	}
	if candidate.wildcard != nil && candidate.wildcard.MatchString(name) {
		return c.weights.NameWildcard
	}
	if utf8.RuneCountInString(candidate.name) >= c.weights.NamePrefixMinLength && strings.HasPrefix(name, candidate.name) {
		return c.weights.NamePrefix
	}
	return 0
}
