package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cookietrail/services/recorder/internal/classifier"
)

// tally counts per category and remembers first-seen order for tie-breaks.
type tally struct {
	counts map[classifier.Category]int
	order  []classifier.Category
	total  int
}

func newTally() *tally {
	return &tally{counts: make(map[classifier.Category]int)}
}

func (t *tally) inc(category classifier.Category) {
	if category == "" {
		category = classifier.CategoryUnknown
	}
	if _, seen := t.counts[category]; !seen {
		t.order = append(t.order, category)
	}
	t.counts[category]++
	t.total++
}

func (t *tally) sorted() []CategoryCount {
	out := make([]CategoryCount, 0, len(t.order))
	for _, category := range t.order {
		if count := t.counts[category]; count > 0 {
			out = append(out, CategoryCount{Category: category, Count: count})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

type batch struct {
	opened  time.Time
	added   *tally
	removed *tally
}

func newBatch(opened time.Time) *batch {
	return &batch{opened: opened, added: newTally(), removed: newTally()}
}

func (b *batch) add(category classifier.Category)    { b.added.inc(category) }
func (b *batch) remove(category classifier.Category) { b.removed.inc(category) }

func (b *batch) summary() (Entry, bool) {
	if b.added.total == 0 && b.removed.total == 0 {
		return Entry{}, false
	}

	entry := Entry{Kind: KindSummary, Timestamp: b.opened}
	if b.added.total > 0 {
		entry.Added = b.added.sorted()
		entry.Lines = append(entry.Lines, summaryLine("+", b.added.total, entry.Added))
	}
	if b.removed.total > 0 {
		entry.Removed = b.removed.sorted()
		entry.Lines = append(entry.Lines, summaryLine("-", b.removed.total, entry.Removed))
	}
	return entry, true
}

func summaryLine(sign string, total int, counts []CategoryCount) string {
	parts := make([]string, 0, len(counts))
	for _, count := range counts {
		parts = append(parts, fmt.Sprintf("%dx %s", count.Count, count.Category))
	}
	return fmt.Sprintf("%s%d Cookies (%s)", sign, total, strings.Join(parts, ", "))
}
