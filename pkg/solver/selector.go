package solver

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/layerforge/layerforge/pkg/model"
)

// Candidate is one permitted choice for a layer. A nil Trait means the
// optional layer is omitted from the assignment.
type Candidate struct {
	Trait  *model.Trait
	Weight int
}

// Selector produces the rarity-weighted, rule-filtered candidate order for
// a layer given the partial assignment built so far. The order is a
// weighted shuffle: higher-weight traits tend to come first but every
// permitted trait stays reachable.
//
// Ordering is deterministic: for a fixed seed, layer and partial assignment
// the returned order is always the same, independent of how many times the
// selector has been consulted before.
type Selector struct {
	model *model.ConstraintModel
	seed  uint64
}

// NewSelector creates a selector over the constraint model. The seed drives
// every weighted shuffle the selector performs.
func NewSelector(m *model.ConstraintModel, seed uint64) *Selector {
	return &Selector{model: m, seed: seed}
}

// Permitted returns the traits of the layer that no active rule excludes,
// plus whether the layer may be omitted. A rule applies only once its
// owning ruler trait is present in the partial assignment; when any
// applicable rule carries an allow-list, the permitted set is restricted to
// the intersection of all allow-lists, and forbidden entries are always
// excluded.
func (s *Selector) Permitted(layer model.LayerID, partial model.Assignment) ([]*model.Trait, bool) {
	l := s.model.Layer(layer)
	if l == nil {
		return nil, false
	}

	rules := s.model.RulesTargeting(layer, partial)
	var allowed map[model.TraitID]bool // nil means no allow-list active
	forbidden := make(map[model.TraitID]bool)
	for _, r := range rules {
		for _, id := range r.Forbidden {
			forbidden[id] = true
		}
		if len(r.Allowed) == 0 {
			continue
		}
		set := make(map[model.TraitID]bool, len(r.Allowed))
		for _, id := range r.Allowed {
			set[id] = true
		}
		if allowed == nil {
			allowed = set
		} else {
			// Multiple rulers restrict the same layer: intersect.
			for id := range allowed {
				if !set[id] {
					delete(allowed, id)
				}
			}
		}
	}

	out := make([]*model.Trait, 0, len(l.Traits))
	for i := range l.Traits {
		t := &l.Traits[i]
		if forbidden[t.ID] {
			continue
		}
		if allowed != nil && !allowed[t.ID] {
			continue
		}
		out = append(out, t)
	}
	return out, l.Optional
}

// DomainSize returns the number of choices open for the layer under the
// partial assignment. Optional layers always count their omission, so their
// domain is never empty.
func (s *Selector) DomainSize(layer model.LayerID, partial model.Assignment) int {
	traits, optional := s.Permitted(layer, partial)
	n := len(traits)
	if optional {
		n++
	}
	return n
}

// Candidates returns the permitted candidates for the layer in weighted
// order. For optional layers the omission candidate participates in the
// shuffle with DefaultWeight.
func (s *Selector) Candidates(layer model.LayerID, partial model.Assignment) []Candidate {
	traits, optional := s.Permitted(layer, partial)
	cands := make([]Candidate, 0, len(traits)+1)
	for _, t := range traits {
		cands = append(cands, Candidate{Trait: t, Weight: t.Weight})
	}
	if optional {
		cands = append(cands, Candidate{Trait: nil, Weight: model.DefaultWeight})
	}
	if len(cands) < 2 {
		return cands
	}

	// Weighted shuffle (Efraimidis-Spirakis): each candidate draws a key
	// u^(1/w); sorting by key descending yields weight-proportional order
	// without ever dropping a candidate.
	rng := s.orderRNG(layer, partial)
	keys := make([]float64, len(cands))
	for i, c := range cands {
		u := rng.Float64()
		keys[i] = math.Pow(u, 1.0/float64(c.Weight))
	}
	return reorder(cands, keys)
}

// reorder sorts candidates by descending key. Sorting an index slice keeps
// the key lookup stable while candidates move.
func reorder(cands []Candidate, keys []float64) []Candidate {
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] > keys[idx[j]] })
	out := make([]Candidate, len(cands))
	for i, k := range idx {
		out[i] = cands[k]
	}
	return out
}

// orderRNG derives a PCG source from the seed, the layer and the canonical
// partial-assignment signature. Hashing the full state makes the candidate
// order a pure function of (seed, layer, partial).
func (s *Selector) orderRNG(layer model.LayerID, partial model.Assignment) *rand.Rand {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], s.seed)
	h.Write(buf[:])
	h.Write([]byte(layer))
	for _, lid := range partial.Layers() {
		h.Write([]byte(lid))
		h.Write([]byte{'='})
		h.Write([]byte(partial[lid]))
		h.Write([]byte{'|'})
	}
	sum := h.Sum(nil)
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))
}
