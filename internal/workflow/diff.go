package workflow

import (
	"fmt"
	"strings"
)

// splitItems parses a delimited item list, trimming whitespace around commas
// and dropping empty elements.
func splitItems(items string) []string {
	parts := strings.Split(items, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// diffItems compares two item lists elementwise up to the longer length.
// The comparison is positional by design: reordering reads as per-slot
// updates, which keeps the generated text stable with the existing audit
// history.
func diffItems(oldItems, newItems []string) []string {
	n := len(oldItems)
	if len(newItems) > n {
		n = len(newItems)
	}
	var changes []string
	for i := 0; i < n; i++ {
		switch {
		case i >= len(oldItems):
			changes = append(changes, fmt.Sprintf("Added item %s", newItems[i]))
		case i >= len(newItems):
			changes = append(changes, fmt.Sprintf("Removed item %s", oldItems[i]))
		case oldItems[i] != newItems[i]:
			changes = append(changes, fmt.Sprintf("Updated item from %s to %s", oldItems[i], newItems[i]))
		}
	}
	return changes
}

// requestChanges produces the human-readable change lines between two request
// snapshots: type change, status change, then the positional item diff.
func requestChanges(old, updated *Request) []string {
	var changes []string
	if old.Type != updated.Type {
		changes = append(changes, fmt.Sprintf("Type changed from %q to %q", old.Type, updated.Type))
	}
	if old.Status != updated.Status {
		changes = append(changes, fmt.Sprintf("Status changed from %q to %q", old.Status, updated.Status))
	}
	changes = append(changes, diffItems(splitItems(old.Items), splitItems(updated.Items))...)
	return changes
}

// changeDetails renders the workflow entry text for an accepted update. An
// update that changed nothing still gets a line; an update is never silently
// unlogged.
func changeDetails(actor string, old, updated *Request) string {
	changes := requestChanges(old, updated)
	if len(changes) == 0 {
		return fmt.Sprintf("%s edited request #%s", actor, updated.ID)
	}
	return fmt.Sprintf("%s updated request #%s: %s", actor, updated.ID, strings.Join(changes, "; "))
}
