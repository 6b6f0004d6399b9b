package manager

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/mnemo/internal/memory"
)

// refreshAttributes folds a newly retained event into the record's durable
// attributes. Deliberately heuristic: structured payload fields become
// profile hints without a second inference call.
func refreshAttributes(rec *memory.Record, ev memory.Event) {
	if lang, ok := ev.Payload["language"].(string); ok && lang != "" {
		rec.Attributes["preferred_language"] = lang
	}
	rec.Attributes["last_event_kind"] = string(ev.Kind)

	count, _ := rec.Attributes["interaction_count"].(float64)
	rec.Attributes["interaction_count"] = count + 1
}

// summarize rebuilds the rolling history summary from event-kind counts.
// Deterministic on purpose: the durable write path carries no network
// dependency.
func summarize(rec *memory.Record) string {
	if len(rec.Events) == 0 {
		return ""
	}

	counts := map[memory.EventKind]int{}
	high := 0
	for _, ev := range rec.Events {
		counts[ev.Kind]++
		if ev.Importance > 0.7 {
			high++
		}
	}

	type kindCount struct {
		kind  memory.EventKind
		count int
	}
	ranked := make([]kindCount, 0, len(counts))
	for k, c := range counts {
		ranked = append(ranked, kindCount{k, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].kind < ranked[j].kind
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	parts := []string{fmt.Sprintf("Recent activity: %d events", len(rec.Events))}
	types := make([]string, len(ranked))
	for i, kc := range ranked {
		types[i] = fmt.Sprintf("%s(%d)", kc.kind, kc.count)
	}
	parts = append(parts, "Main types: "+strings.Join(types, ", "))
	if high > 0 {
		parts = append(parts, fmt.Sprintf("%d high-importance events recorded", high))
	}
	return strings.Join(parts, " | ")
}
