package solver

import (
	"sort"
	"strings"
	"sync"

	"github.com/layerforge/layerforge/pkg/model"
)

// ComboKey is the canonical identity of one trait tuple within a layer
// combination: "layer=trait" pairs sorted by layer ID and joined with "|".
// Sorting on layer ID makes the key independent of assignment order.
type ComboKey string

// KeyFor builds the combination key for an assignment. The second return is
// false when the assignment does not cover every layer of the combination
// (an omitted optional layer leaves the combination untracked for that item).
func KeyFor(c model.LayerCombination, a model.Assignment) (ComboKey, bool) {
	pairs := make([]string, 0, len(c.Layers))
	for _, lid := range c.Layers {
		tid, ok := a[lid]
		if !ok {
			return "", false
		}
		pairs = append(pairs, string(lid)+"="+string(tid))
	}
	sort.Strings(pairs)
	return ComboKey(strings.Join(pairs, "|")), true
}

// Tracker is the uniqueness tracker for one generation session. It records
// which trait tuples have been used per active combination and is the single
// authority for accept-or-reject decisions. All methods are safe under
// concurrent solver attempts; acceptance checks and insertions happen under
// one lock so no two attempts can claim the same tuple.
//
// The tracker grows monotonically for the duration of a run. Reset starts a
// fresh session in place.
type Tracker struct {
	mu   sync.Mutex
	used map[model.CombinationID]map[ComboKey]struct{}
}

// NewTracker creates a tracker covering the given combinations.
func NewTracker(combos []model.LayerCombination) *Tracker {
	t := &Tracker{used: make(map[model.CombinationID]map[ComboKey]struct{}, len(combos))}
	for _, c := range combos {
		t.used[c.ID] = make(map[ComboKey]struct{})
	}
	return t
}

// IsUsed reports whether the tuple has already been accepted for the
// combination.
func (t *Tracker) IsUsed(id model.CombinationID, key ComboKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.used[id][key]
	return ok
}

// Mark records a tuple as used. Unknown combination IDs are ignored.
func (t *Tracker) Mark(id model.CombinationID, key ComboKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.used[id]; ok {
		set[key] = struct{}{}
	}
}

// Accept atomically registers an accepted assignment: for every combination
// whose layers the assignment fully covers, the tuple is checked and
// inserted under a single lock. Returns false, leaving the tracker
// untouched, if any tuple is already used.
func (t *Tracker) Accept(m *model.ConstraintModel, a model.Assignment) bool {
	keys := make(map[model.CombinationID]ComboKey)
	for _, c := range m.Combinations() {
		if key, full := KeyFor(c, a); full {
			keys[c.ID] = key
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, key := range keys {
		if _, used := t.used[id][key]; used {
			return false
		}
	}
	for id, key := range keys {
		if set, ok := t.used[id]; ok {
			set[key] = struct{}{}
		}
	}
	return true
}

// Count returns how many tuples have been accepted for a combination.
func (t *Tracker) Count(id model.CombinationID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.used[id])
}

// Reset discards all recorded tuples, simulating a fresh session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.used {
		t.used[id] = make(map[ComboKey]struct{})
	}
}
