package solver

import (
	"sort"
	"strings"
	"sync"

	"github.com/layerforge/layerforge/pkg/model"
)

// signature builds the canonical string identity of a partial solver state:
// assigned layers as "layer=trait", omitted-but-decided optional layers as
// "layer=~", sorted and joined with "|". Two searches reaching the same
// signature face the same remaining subproblem, as far as rules are
// concerned.
func signature(partial model.Assignment, omitted map[model.LayerID]bool) string {
	parts := make([]string, 0, len(partial)+len(omitted))
	for lid, tid := range partial {
		parts = append(parts, string(lid)+"="+string(tid))
	}
	for lid := range omitted {
		parts = append(parts, string(lid)+"=~")
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// deadEnds memoizes partial states proven unsolvable by rule constraints
// alone. Entries are valid across items within a session: ruler
// incompatibility does not depend on which tuples the tracker has accepted,
// so a state that failed purely on rules will fail again for every later
// item. States whose failure involved a uniqueness collision are never
// recorded here.
type deadEnds struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newDeadEnds() *deadEnds {
	return &deadEnds{set: make(map[string]struct{})}
}

func (d *deadEnds) known(sig string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.set[sig]
	return ok
}

func (d *deadEnds) record(sig string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set[sig] = struct{}{}
}

func (d *deadEnds) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.set)
}
