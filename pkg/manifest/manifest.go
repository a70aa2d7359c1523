// Package manifest loads collection projects from TOML files.
//
// A manifest describes the layers, traits, rules, and uniqueness
// combinations of a project, with trait images referenced as file paths
// relative to the manifest. Loading resolves every image to its bytes so
// the engine never touches the filesystem mid-run.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
)

type manifestFile struct {
	Name         string       `toml:"name"`
	Description  string       `toml:"description"`
	Layers       []layerEntry `toml:"layers"`
	Rules        []ruleEntry  `toml:"rules"`
	Combinations []comboEntry `toml:"combinations"`
}

type layerEntry struct {
	ID       string       `toml:"id"`
	Name     string       `toml:"name"`
	Order    *int         `toml:"order"`
	Optional bool         `toml:"optional"`
	Traits   []traitEntry `toml:"traits"`
}

type traitEntry struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Weight int    `toml:"weight"`
	Image  string `toml:"image"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type ruleEntry struct {
	Ruler     string   `toml:"ruler"`
	Target    string   `toml:"target"`
	Allowed   []string `toml:"allowed"`
	Forbidden []string `toml:"forbidden"`
}

type comboEntry struct {
	ID          string   `toml:"id"`
	Layers      []string `toml:"layers"`
	Active      *bool    `toml:"active"`
	Description string   `toml:"description"`
}

// Load reads a manifest file and resolves all trait images relative to it.
func Load(path string) (model.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Project{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest %s", path)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes manifest bytes. Trait image paths are resolved against
// baseDir; pass an empty baseDir to skip image loading (traits then carry
// no payload, which only dry runs can tolerate).
func Parse(data []byte, baseDir string) (model.Project, error) {
	var mf manifestFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return model.Project{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse manifest")
	}

	p := model.Project{
		Name:        mf.Name,
		Description: mf.Description,
	}

	for i, le := range mf.Layers {
		layer := model.Layer{
			ID:       model.LayerID(le.ID),
			Name:     le.Name,
			Optional: le.Optional,
		}
		// declaration position is the compositing order unless overridden
		if le.Order != nil {
			layer.Order = *le.Order
		} else {
			layer.Order = i
		}

		for _, te := range le.Traits {
			trait := model.Trait{
				ID:     model.TraitID(te.ID),
				Name:   te.Name,
				Weight: te.Weight,
				Width:  te.Width,
				Height: te.Height,
			}
			if trait.Weight == 0 {
				trait.Weight = model.DefaultWeight
			}
			if te.Image != "" && baseDir != "" {
				img, err := os.ReadFile(filepath.Join(baseDir, te.Image))
				if err != nil {
					return model.Project{}, errors.Wrap(errors.ErrCodeInvalidManifest, err,
						"trait %q: image %s", te.ID, te.Image)
				}
				trait.Image = img
			}
			layer.Traits = append(layer.Traits, trait)
		}
		p.Layers = append(p.Layers, layer)
	}

	for _, re := range mf.Rules {
		rule := model.RulerRule{
			Ruler:  model.TraitID(re.Ruler),
			Target: model.LayerID(re.Target),
		}
		for _, id := range re.Allowed {
			rule.Allowed = append(rule.Allowed, model.TraitID(id))
		}
		for _, id := range re.Forbidden {
			rule.Forbidden = append(rule.Forbidden, model.TraitID(id))
		}
		p.Rules = append(p.Rules, rule)
	}

	for _, ce := range mf.Combinations {
		combo := model.LayerCombination{
			ID:          model.CombinationID(ce.ID),
			Description: ce.Description,
			Active:      true,
		}
		if ce.Active != nil {
			combo.Active = *ce.Active
		}
		for _, id := range ce.Layers {
			combo.Layers = append(combo.Layers, model.LayerID(id))
		}
		p.Combinations = append(p.Combinations, combo)
	}

	if err := model.Validate(p); err != nil {
		return model.Project{}, err
	}
	return p, nil
}
