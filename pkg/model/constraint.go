package model

import (
	"math"
	"sort"
)

// ConstraintModel is an immutable, read-optimized view over a Project built
// once per generation session. It precomputes the lookup tables the solver
// needs on its hot path: traits per layer, rules per ruler trait, and active
// combinations per layer. Rebuilding requires a new session; there are no
// mutation methods.
type ConstraintModel struct {
	project Project

	layers       []Layer // sorted by Order, ties by ID
	layerByID    map[LayerID]*Layer
	traitByID    map[TraitID]*Trait
	traitLayer   map[TraitID]LayerID
	rulesByRuler map[TraitID][]RulerRule
	combinations []LayerCombination // active only
	combosByID   map[CombinationID]*LayerCombination
	combosTouch  map[LayerID][]*LayerCombination
}

// NewConstraintModel validates the project and builds the constraint view.
// The returned model holds its own sorted copy of the layer slice; the
// caller must not mutate trait payloads afterwards.
func NewConstraintModel(p Project) (*ConstraintModel, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	m := &ConstraintModel{
		project:      p,
		layerByID:    make(map[LayerID]*Layer),
		traitByID:    make(map[TraitID]*Trait),
		traitLayer:   make(map[TraitID]LayerID),
		rulesByRuler: make(map[TraitID][]RulerRule),
		combosByID:   make(map[CombinationID]*LayerCombination),
		combosTouch:  make(map[LayerID][]*LayerCombination),
	}

	m.layers = make([]Layer, len(p.Layers))
	copy(m.layers, p.Layers)
	sort.SliceStable(m.layers, func(i, j int) bool {
		if m.layers[i].Order != m.layers[j].Order {
			return m.layers[i].Order < m.layers[j].Order
		}
		return m.layers[i].ID < m.layers[j].ID
	})

	for i := range m.layers {
		l := &m.layers[i]
		m.layerByID[l.ID] = l
		for j := range l.Traits {
			t := &l.Traits[j]
			m.traitByID[t.ID] = t
			m.traitLayer[t.ID] = l.ID
		}
	}

	for _, r := range p.Rules {
		m.rulesByRuler[r.Ruler] = append(m.rulesByRuler[r.Ruler], r)
	}

	for i := range p.Combinations {
		c := p.Combinations[i]
		if !c.Active {
			continue
		}
		m.combinations = append(m.combinations, c)
	}
	for i := range m.combinations {
		c := &m.combinations[i]
		m.combosByID[c.ID] = c
		for _, lid := range c.Layers {
			m.combosTouch[lid] = append(m.combosTouch[lid], c)
		}
	}

	return m, nil
}

// Project returns the underlying project (name/description pass-through).
func (m *ConstraintModel) Project() Project { return m.project }

// Layers returns all layers in compositing order (bottom first).
func (m *ConstraintModel) Layers() []Layer { return m.layers }

// Layer returns the layer with the given ID, or nil.
func (m *ConstraintModel) Layer(id LayerID) *Layer { return m.layerByID[id] }

// Trait returns the trait with the given ID, or nil.
func (m *ConstraintModel) Trait(id TraitID) *Trait { return m.traitByID[id] }

// TraitLayer returns the layer a trait belongs to.
func (m *ConstraintModel) TraitLayer(id TraitID) (LayerID, bool) {
	lid, ok := m.traitLayer[id]
	return lid, ok
}

// TraitsOf returns the traits of the given layer, in declared order.
func (m *ConstraintModel) TraitsOf(id LayerID) []Trait {
	l := m.layerByID[id]
	if l == nil {
		return nil
	}
	return l.Traits
}

// RulesOf returns the rules owned by the given ruler trait.
func (m *ConstraintModel) RulesOf(ruler TraitID) []RulerRule {
	return m.rulesByRuler[ruler]
}

// RulesTargeting returns the rules that restrict the target layer and whose
// owning ruler trait is present in the partial assignment. Rules whose ruler
// is not yet chosen do not apply.
func (m *ConstraintModel) RulesTargeting(target LayerID, chosen Assignment) []RulerRule {
	var out []RulerRule
	for _, ruler := range chosen {
		for _, r := range m.rulesByRuler[ruler] {
			if r.Target == target {
				out = append(out, r)
			}
		}
	}
	return out
}

// Combinations returns the active layer combinations.
func (m *ConstraintModel) Combinations() []LayerCombination { return m.combinations }

// Combination returns the active combination with the given ID, or nil.
func (m *ConstraintModel) Combination(id CombinationID) *LayerCombination {
	return m.combosByID[id]
}

// CombinationsTouching returns the active combinations that include the
// given layer.
func (m *ConstraintModel) CombinationsTouching(id LayerID) []*LayerCombination {
	return m.combosTouch[id]
}

// CombinationCapacity returns the theoretical number of distinct trait
// tuples for a combination: the product of the trait counts of its layers.
// Omittable optional layers can stretch this in practice (items that omit a
// layer are never tracked against the combination), so the value is a lower
// bound on what a collection can hold. Wide combinations whose product
// would overflow are clamped to MaxInt.
func (m *ConstraintModel) CombinationCapacity(c LayerCombination) int {
	capacity := 1
	for _, lid := range c.Layers {
		l := m.layerByID[lid]
		if l == nil {
			return 0
		}
		n := len(l.Traits)
		if n == 0 {
			return 0
		}
		if capacity > math.MaxInt/n {
			return math.MaxInt
		}
		capacity *= n
	}
	return capacity
}
