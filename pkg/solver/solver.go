// Package solver implements the constraint-driven assignment engine behind
// LayerForge generation.
//
// For each output item the solver picks one trait per layer, honoring three
// kinds of constraints:
//
//   - ruler rules: allow/forbid lists that activate once their owning trait
//     is chosen,
//   - strict combinations: multi-layer trait tuples that must stay unique
//     across the collection (enforced through the Tracker),
//   - rarity weights: candidate orders are weighted shuffles so common
//     traits are tried first without making rare traits unreachable.
//
// The search is depth-first backtracking over layers ordered by minimum
// remaining values (MRV): the most constrained layer is assigned first, and
// the ordering is recomputed after every assignment because choosing a
// ruler trait changes which rules apply. After each tentative choice the
// domains of the untouched layers are pruned eagerly so contradictions
// surface before recursing. Partial states proven unsolvable by rules alone
// are memoized session-wide and never re-explored.
//
// Solving one item is sequential; the Tracker is the single authority for
// tuple uniqueness and makes acceptance atomic, so the package stays correct
// even if a caller runs attempts concurrently.
package solver

import (
	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
)

// DefaultMaxSteps bounds the candidate trials of a single Solve call.
// The dead-end memo keeps realistic searches far below this; the bound
// exists so pathological rule sets terminate with a diagnostic instead of
// spinning.
const DefaultMaxSteps = 200_000

// Solver produces one validated assignment per Solve call. It owns the
// session-wide dead-end memo; the Tracker is shared with the scheduler that
// created the session.
type Solver struct {
	model    *model.ConstraintModel
	tracker  *Tracker
	memo     *deadEnds
	seed     uint64
	maxSteps int
}

// Option configures a Solver.
type Option func(*Solver)

// WithMaxSteps overrides the per-item traversal budget.
func WithMaxSteps(n int) Option {
	return func(s *Solver) { s.maxSteps = n }
}

// New creates a solver for one generation session. The seed drives all
// weighted candidate ordering; two solvers built with the same model and
// seed explore identically.
func New(m *model.ConstraintModel, tracker *Tracker, seed uint64, opts ...Option) *Solver {
	s := &Solver{
		model:    m,
		tracker:  tracker,
		memo:     newDeadEnds(),
		seed:     seed,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MemoSize reports how many rule-driven dead ends have been recorded.
func (s *Solver) MemoSize() int { return s.memo.size() }

// Solve finds a complete assignment for the item with the given index,
// registers its combination tuples atomically, and returns it. The item
// index perturbs the candidate order so consecutive items diverge; solving
// the same index twice against an empty tracker reproduces the same
// assignment.
//
// A SOLVER_EXHAUSTED error means no valid assignment exists given the
// current constraints and uniqueness state. This is a hard failure for the
// session, distinct from the candidate-level failures recovered by
// backtracking.
func (s *Solver) Solve(itemIndex int) (model.Assignment, error) {
	st := &search{
		solver:   s,
		selector: NewSelector(s.model, s.seed+uint64(itemIndex)),
		omitted:  make(map[model.LayerID]bool),
	}

	remaining := make([]model.LayerID, 0, len(s.model.Layers()))
	for _, l := range s.model.Layers() {
		remaining = append(remaining, l.ID)
	}

	partial := model.Assignment{}
	result, ok, _ := st.assign(partial, remaining)
	if !ok {
		if st.budgetHit {
			return nil, errors.New(errors.ErrCodeSolverExhausted,
				"traversal budget (%d steps) exhausted for item %d; constraints are too tight to search", s.maxSteps, itemIndex)
		}
		return nil, errors.New(errors.ErrCodeSolverExhausted,
			"no valid assignment exists for item %d under the active rules and uniqueness constraints", itemIndex)
	}
	return result, nil
}

// search carries the per-item state of one Solve call.
type search struct {
	solver    *Solver
	selector  *Selector
	omitted   map[model.LayerID]bool // optional layers decided as omitted
	steps     int
	budgetHit bool
}

// assign recursively extends the partial assignment over the remaining
// layers. Returns the accepted assignment on success. The third return
// reports whether a failure was "pure": caused by rules alone, independent
// of the tracker state, and therefore safe to memoize session-wide.
func (st *search) assign(partial model.Assignment, remaining []model.LayerID) (model.Assignment, bool, bool) {
	if len(remaining) == 0 {
		// Acceptance re-checks and inserts all covered tuples under one
		// lock, so concurrent attempts cannot both claim a tuple.
		if st.solver.tracker.Accept(st.solver.model, partial) {
			return partial.Clone(), true, true
		}
		return nil, false, false
	}

	sig := signature(partial, st.omitted)
	if st.solver.memo.known(sig) {
		return nil, false, true
	}

	layer := st.mrvLayer(partial, remaining)
	rest := without(remaining, layer)
	pure := true

	for _, cand := range st.selector.Candidates(layer, partial) {
		st.steps++
		if st.steps > st.solver.maxSteps {
			st.budgetHit = true
			return nil, false, false
		}

		if cand.Trait == nil {
			st.omitted[layer] = true
		} else {
			partial[layer] = cand.Trait.ID
		}

		ok := true
		if cand.Trait != nil {
			if st.collides(layer, partial) {
				ok = false
				pure = false // rejection depends on the tracker state
			} else if !st.propagate(partial, rest) {
				ok = false
			}
		}

		if ok {
			if result, solved, subPure := st.assign(partial, rest); solved {
				return result, true, true
			} else if !subPure {
				pure = false
			}
		}

		if cand.Trait == nil {
			delete(st.omitted, layer)
		} else {
			delete(partial, layer)
		}
	}

	if pure {
		st.solver.memo.record(sig)
	}
	return nil, false, pure
}

// mrvLayer picks the remaining layer with the fewest permitted choices.
// Ties fall back to declared layer order, which is the order of remaining.
func (st *search) mrvLayer(partial model.Assignment, remaining []model.LayerID) model.LayerID {
	best := remaining[0]
	bestSize := st.selector.DomainSize(best, partial)
	for _, lid := range remaining[1:] {
		if size := st.selector.DomainSize(lid, partial); size < bestSize {
			best, bestSize = lid, size
		}
	}
	return best
}

// collides reports whether any combination newly completed by assigning the
// given layer repeats an already-used tuple.
func (st *search) collides(layer model.LayerID, partial model.Assignment) bool {
	for _, c := range st.solver.model.CombinationsTouching(layer) {
		if key, full := KeyFor(*c, partial); full && st.solver.tracker.IsUsed(c.ID, key) {
			return true
		}
	}
	return false
}

// propagate checks that every remaining layer still has at least one open
// choice under the extended assignment. Optional layers always do (omission
// stays open), so only mandatory layers can fail here. This fails fast on
// ruler contradictions before recursing.
func (st *search) propagate(partial model.Assignment, remaining []model.LayerID) bool {
	for _, lid := range remaining {
		if st.selector.DomainSize(lid, partial) == 0 {
			return false
		}
	}
	return true
}

// without returns remaining minus the given layer, preserving order.
func without(remaining []model.LayerID, layer model.LayerID) []model.LayerID {
	out := make([]model.LayerID, 0, len(remaining)-1)
	for _, lid := range remaining {
		if lid != layer {
			out = append(out, lid)
		}
	}
	return out
}
