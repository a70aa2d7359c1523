// Package model defines the domain types for LayerForge collections.
//
// A collection is generated by picking one trait per layer. Layers are
// independent option pools; traits carry rarity weights and image payloads.
// Two kinds of constraints restrict the picks:
//
//   - RulerRule: a trait that, once chosen, allows or forbids traits on
//     another layer.
//   - LayerCombination: a set of layers whose joint trait selection must be
//     unique across the whole generated collection.
//
// The package also provides ConstraintModel, an immutable read-optimized
// view over a Project used by the solver, and full pre-run validation of
// all constraint references.
package model

import "sort"

// LayerID identifies a layer within a project.
type LayerID string

// TraitID identifies a trait. Trait IDs are unique across the whole
// project, not just within their layer.
type TraitID string

// CombinationID identifies a layer combination.
type CombinationID string

// DefaultWeight is the rarity weight assumed for traits that declare none.
const DefaultWeight = 1

// Trait is one concrete option within a layer.
type Trait struct {
	ID     TraitID
	Name   string
	Weight int    // rarity weight, positive; higher is more common
	Image  []byte // encoded image payload (PNG/JPEG bytes)
	Width  int    // declared pixel width, 0 if unknown
	Height int    // declared pixel height, 0 if unknown
}

// Layer is a named axis of variation holding mutually exclusive traits.
type Layer struct {
	ID       LayerID
	Name     string
	Order    int  // display and compositing order, bottom first
	Optional bool // may be omitted entirely from an assignment
	Traits   []Trait
}

// RulerRule constrains a target layer once its owning ruler trait is chosen.
// Allowed and Forbidden are mutually exclusive: a trait ID must never appear
// in both sets of the same rule. An empty Allowed set means "no allow-list";
// only Forbidden applies.
type RulerRule struct {
	Ruler     TraitID // owning trait; the rule activates when it is chosen
	Target    LayerID
	Allowed   []TraitID
	Forbidden []TraitID
}

// LayerCombination declares a set of two or more layers whose joint trait
// selection must be unique across the collection.
type LayerCombination struct {
	ID          CombinationID
	Layers      []LayerID
	Active      bool
	Description string
}

// Project is the generation input: ordered layers with resolved trait
// payloads plus the active constraint sets. Name and Description pass
// through to item metadata untouched.
type Project struct {
	Name         string
	Description  string
	Layers       []Layer
	Rules        []RulerRule
	Combinations []LayerCombination
}

// Assignment maps each assigned layer to its chosen trait. Omitted optional
// layers are absent from the map. An Assignment is immutable once accepted
// by the uniqueness tracker.
type Assignment map[LayerID]TraitID

// Clone returns an independent copy of the assignment.
func (a Assignment) Clone() Assignment {
	c := make(Assignment, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Layers returns the assigned layer IDs sorted lexically. The sorted order
// is the canonical order used for uniqueness keys and signatures.
func (a Assignment) Layers() []LayerID {
	ids := make([]LayerID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Attribute is one layer/trait pair in an item's metadata record.
type Attribute struct {
	Layer string `json:"layer"`
	Trait string `json:"trait"`
}

// Metadata is the per-item metadata record emitted with each generated item.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}
