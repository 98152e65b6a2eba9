package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"cookietrail/services/recorder/internal/cookie"
)

// Entry is one row of the reference cookie database.
type Entry struct {
	ID              string `json:"id"`
	Cookie          string `json:"cookie"`
	Domain          string `json:"domain,omitempty"`
	Category        string `json:"category,omitempty"`
	Description     string `json:"description,omitempty"`
	Platform        string `json:"platform,omitempty"`
	RetentionPeriod string `json:"retentionPeriod,omitempty"`
	DataController  string `json:"dataController,omitempty"`
	PrivacyLink     string `json:"privacyLink,omitempty"`
}

type compiledEntry struct {
	entry    Entry
	name     string
	domain   string
	wildcard *regexp.Regexp
}

// KnowledgeBase is the immutable, ordered reference set the classifier scores
// against. Entry order decides ties.
type KnowledgeBase struct {
	entries []compiledEntry
}

func NewKnowledgeBase(entries []Entry) *KnowledgeBase {
	kb := &KnowledgeBase{entries: make([]compiledEntry, 0, len(entries))}
	for _, entry := range entries {
		compiled := compiledEntry{
			entry:  entry,
			name:   cookie.NormalizeCookieName(entry.Cookie),
			domain: cookie.NormalizeDomain(entry.Domain),
		}
		if strings.Contains(compiled.name, "*") {
			re, err := cookie.WildcardPattern(compiled.name)
			if err != nil {
				log.Printf("skipping wildcard compile id=%s pattern=%q err=%v", entry.ID, entry.Cookie, err)
			} else {
				compiled.wildcard = re
			}
		}
		kb.entries = append(kb.entries, compiled)
	}
	return kb
}

func (kb *KnowledgeBase) Len() int {
	if kb == nil {
		return 0
	}
	return len(kb.entries)
}

func (kb *KnowledgeBase) Entries() []Entry {
	if kb == nil {
		return nil
	}
	out := make([]Entry, 0, len(kb.entries))
	for _, compiled := range kb.entries {
		out = append(out, compiled.entry)
	}
	return out
}

// DecodeEntries flattens a `{"group": [entries...]}` document into one slice,
// keeping document order of groups and of entries inside each group.
func DecodeEntries(data []byte) ([]Entry, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode knowledge base: expected object, got %v", token)
	}

	entries := make([]Entry, 0)
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("decode knowledge base group: %w", err)
		}
		group, _ := keyToken.(string)

		var groupEntries []Entry
		if err := decoder.Decode(&groupEntries); err != nil {
			return nil, fmt.Errorf("decode knowledge base group %q: %w", group, err)
		}
		entries = append(entries, groupEntries...)
	}

	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	return entries, nil
}
