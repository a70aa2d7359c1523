package model

import (
	"github.com/layerforge/layerforge/pkg/errors"
)

// Validate checks a project for configuration errors. All checks run before
// any solving starts; a failure here is fatal for the session and is never
// retried.
//
// Checks performed:
//   - at least one layer, every layer has at least one usable trait
//   - layer and trait IDs are unique project-wide
//   - trait weights are positive (zero means "use DefaultWeight" upstream
//     and must be resolved before validation)
//   - every rule's ruler trait and target layer exist, the ruler does not
//     target its own layer, and no trait appears in both the allowed and
//     forbidden sets of the same rule
//   - every active combination names at least two distinct existing layers
func Validate(p Project) error {
	if len(p.Layers) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "project %q has no layers", p.Name)
	}

	layerIDs := make(map[LayerID]bool)
	traitIDs := make(map[TraitID]LayerID)
	for _, l := range p.Layers {
		if l.ID == "" {
			return errors.New(errors.ErrCodeInvalidLayer, "layer %q has an empty ID", l.Name)
		}
		if layerIDs[l.ID] {
			return errors.New(errors.ErrCodeInvalidLayer, "duplicate layer ID %q", l.ID)
		}
		layerIDs[l.ID] = true

		if len(l.Traits) == 0 {
			return errors.New(errors.ErrCodeInvalidLayer, "layer %q has no usable traits", l.ID)
		}
		for _, t := range l.Traits {
			if t.ID == "" {
				return errors.New(errors.ErrCodeInvalidTrait, "layer %q contains a trait with an empty ID", l.ID)
			}
			if prev, dup := traitIDs[t.ID]; dup {
				return errors.New(errors.ErrCodeInvalidTrait, "trait ID %q appears in layers %q and %q", t.ID, prev, l.ID)
			}
			traitIDs[t.ID] = l.ID
			if t.Weight <= 0 {
				return errors.New(errors.ErrCodeInvalidTrait, "trait %q has non-positive weight %d", t.ID, t.Weight)
			}
		}
	}

	for _, r := range p.Rules {
		rulerLayer, ok := traitIDs[r.Ruler]
		if !ok {
			return errors.New(errors.ErrCodeInvalidRule, "rule references unknown ruler trait %q", r.Ruler)
		}
		if !layerIDs[r.Target] {
			return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q targets unknown layer %q", r.Ruler, r.Target)
		}
		if r.Target == rulerLayer {
			return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q targets its own layer %q", r.Ruler, r.Target)
		}
		allowed := make(map[TraitID]bool, len(r.Allowed))
		for _, id := range r.Allowed {
			if lid, ok := traitIDs[id]; !ok {
				return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q allows unknown trait %q", r.Ruler, id)
			} else if lid != r.Target {
				return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q allows trait %q which is not on target layer %q", r.Ruler, id, r.Target)
			}
			allowed[id] = true
		}
		for _, id := range r.Forbidden {
			if lid, ok := traitIDs[id]; !ok {
				return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q forbids unknown trait %q", r.Ruler, id)
			} else if lid != r.Target {
				return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q forbids trait %q which is not on target layer %q", r.Ruler, id, r.Target)
			}
			if allowed[id] {
				return errors.New(errors.ErrCodeInvalidRule, "rule on trait %q lists trait %q as both allowed and forbidden", r.Ruler, id)
			}
		}
	}

	comboIDs := make(map[CombinationID]bool)
	for _, c := range p.Combinations {
		if !c.Active {
			continue
		}
		if comboIDs[c.ID] {
			return errors.New(errors.ErrCodeInvalidCombination, "duplicate combination ID %q", c.ID)
		}
		comboIDs[c.ID] = true
		if len(c.Layers) < 2 {
			return errors.New(errors.ErrCodeInvalidCombination, "combination %q needs at least two layers, has %d", c.ID, len(c.Layers))
		}
		seen := make(map[LayerID]bool, len(c.Layers))
		for _, lid := range c.Layers {
			if !layerIDs[lid] {
				return errors.New(errors.ErrCodeInvalidCombination, "combination %q references unknown layer %q", c.ID, lid)
			}
			if seen[lid] {
				return errors.New(errors.ErrCodeInvalidCombination, "combination %q lists layer %q twice", c.ID, lid)
			}
			seen[lid] = true
		}
	}

	return nil
}
