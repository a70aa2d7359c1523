package model

import (
	"fmt"
	"math"
	"testing"
)

// testProject builds a small project with two layers, one rule and one
// active combination. Used across the model tests.
func testProject() Project {
	return Project{
		Name: "test",
		Layers: []Layer{
			{
				ID:    "head",
				Name:  "Head",
				Order: 1,
				Traits: []Trait{
					{ID: "h1", Name: "Cap", Weight: 3},
					{ID: "h2", Name: "Crown", Weight: 1},
					{ID: "h3", Name: "Bandana", Weight: 2},
				},
			},
			{
				ID:    "base",
				Name:  "Base",
				Order: 0,
				Traits: []Trait{
					{ID: "b1", Name: "Blue", Weight: 1},
					{ID: "b2", Name: "Red", Weight: 1},
				},
			},
		},
		Rules: []RulerRule{
			{Ruler: "b2", Target: "head", Allowed: []TraitID{"h1"}},
		},
		Combinations: []LayerCombination{
			{ID: "pair", Layers: []LayerID{"base", "head"}, Active: true},
			{ID: "off", Layers: []LayerID{"base", "head"}, Active: false},
		},
	}
}

func TestNewConstraintModelOrdersLayers(t *testing.T) {
	m, err := NewConstraintModel(testProject())
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}

	layers := m.Layers()
	if len(layers) != 2 {
		t.Fatalf("Layers count = %d, want 2", len(layers))
	}
	if layers[0].ID != "base" || layers[1].ID != "head" {
		t.Errorf("layers not sorted by Order: %v, %v", layers[0].ID, layers[1].ID)
	}
}

func TestTraitLookups(t *testing.T) {
	m, err := NewConstraintModel(testProject())
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}

	if tr := m.Trait("h2"); tr == nil || tr.Name != "Crown" {
		t.Errorf("Trait(h2) = %+v", tr)
	}
	if lid, ok := m.TraitLayer("h2"); !ok || lid != "head" {
		t.Errorf("TraitLayer(h2) = %v, %v", lid, ok)
	}
	if got := len(m.TraitsOf("base")); got != 2 {
		t.Errorf("TraitsOf(base) count = %d, want 2", got)
	}
	if m.TraitsOf("missing") != nil {
		t.Error("TraitsOf on unknown layer should be nil")
	}
}

func TestRulesTargeting(t *testing.T) {
	m, err := NewConstraintModel(testProject())
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}

	// Rule inactive until its ruler trait is chosen.
	if rules := m.RulesTargeting("head", Assignment{"base": "b1"}); len(rules) != 0 {
		t.Errorf("rules active without ruler chosen: %v", rules)
	}
	rules := m.RulesTargeting("head", Assignment{"base": "b2"})
	if len(rules) != 1 || rules[0].Ruler != "b2" {
		t.Errorf("RulesTargeting = %v, want one rule owned by b2", rules)
	}
}

func TestCombinations(t *testing.T) {
	m, err := NewConstraintModel(testProject())
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}

	// Inactive combinations are dropped entirely.
	if got := len(m.Combinations()); got != 1 {
		t.Fatalf("Combinations count = %d, want 1", got)
	}
	if c := m.Combination("off"); c != nil {
		t.Error("inactive combination should not resolve")
	}
	if got := len(m.CombinationsTouching("head")); got != 1 {
		t.Errorf("CombinationsTouching(head) = %d, want 1", got)
	}

	combo := m.Combinations()[0]
	if capacity := m.CombinationCapacity(combo); capacity != 6 {
		t.Errorf("CombinationCapacity = %d, want 6", capacity)
	}
}

func TestCombinationCapacityClampsWideProducts(t *testing.T) {
	// 8 layers of 300 traits each: 300^8 overflows int64, so the product
	// must clamp instead of wrapping negative and poisoning capacity checks
	p := Project{Name: "wide"}
	combo := LayerCombination{ID: "all", Active: true}
	for l := 0; l < 8; l++ {
		layer := Layer{ID: LayerID(fmt.Sprintf("l%d", l)), Order: l}
		for k := 0; k < 300; k++ {
			layer.Traits = append(layer.Traits, Trait{
				ID:     TraitID(fmt.Sprintf("l%d-t%d", l, k)),
				Weight: 1,
			})
		}
		p.Layers = append(p.Layers, layer)
		combo.Layers = append(combo.Layers, layer.ID)
	}
	p.Combinations = []LayerCombination{combo}

	m, err := NewConstraintModel(p)
	if err != nil {
		t.Fatalf("NewConstraintModel: %v", err)
	}
	capacity := m.CombinationCapacity(m.Combinations()[0])
	if capacity != math.MaxInt {
		t.Errorf("CombinationCapacity = %d, want MaxInt clamp", capacity)
	}
}

func TestAssignmentLayersSorted(t *testing.T) {
	a := Assignment{"zeta": "t1", "alpha": "t2", "mid": "t3"}
	ids := a.Layers()
	want := []LayerID{"alpha", "mid", "zeta"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("Layers() = %v, want %v", ids, want)
		}
	}
}

func TestAssignmentClone(t *testing.T) {
	a := Assignment{"base": "b1"}
	c := a.Clone()
	c["base"] = "b2"
	if a["base"] != "b1" {
		t.Error("Clone should not share storage")
	}
}
