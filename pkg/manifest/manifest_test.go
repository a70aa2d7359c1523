package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
)

const fixtureTOML = `
name = "Test Collection"
description = "fixture"

[[layers]]
id = "base"
name = "Base"

  [[layers.traits]]
  id = "b1"
  name = "Blue"
  weight = 3
  image = "blue.png"

  [[layers.traits]]
  id = "b2"
  name = "Red"
  image = "red.png"

[[layers]]
id = "head"
name = "Head"
optional = true

  [[layers.traits]]
  id = "h1"
  name = "Crown"
  image = "crown.png"

[[rules]]
ruler = "b1"
target = "head"
allowed = ["h1"]

[[combinations]]
id = "pair"
layers = ["base", "head"]
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"blue.png", "red.png", "crown.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("png-bytes-"+name), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	path := filepath.Join(dir, "project.toml")
	if err := os.WriteFile(path, []byte(fixtureTOML), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	p, err := Load(writeFixture(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Name != "Test Collection" {
		t.Errorf("name = %q", p.Name)
	}
	if len(p.Layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(p.Layers))
	}

	base := p.Layers[0]
	if base.ID != "base" || base.Order != 0 {
		t.Errorf("base layer = %+v", base)
	}
	if base.Traits[0].Weight != 3 {
		t.Errorf("explicit weight = %d, want 3", base.Traits[0].Weight)
	}
	// omitted weight resolves to the default
	if base.Traits[1].Weight != model.DefaultWeight {
		t.Errorf("default weight = %d, want %d", base.Traits[1].Weight, model.DefaultWeight)
	}
	if string(base.Traits[0].Image) != "png-bytes-blue.png" {
		t.Errorf("image payload not loaded: %q", base.Traits[0].Image)
	}

	head := p.Layers[1]
	if !head.Optional || head.Order != 1 {
		t.Errorf("head layer = %+v", head)
	}

	if len(p.Rules) != 1 || p.Rules[0].Ruler != "b1" || p.Rules[0].Allowed[0] != "h1" {
		t.Errorf("rules = %+v", p.Rules)
	}

	// combinations default to active
	if len(p.Combinations) != 1 || !p.Combinations[0].Active {
		t.Errorf("combinations = %+v", p.Combinations)
	}
}

func TestLoadMissingImage(t *testing.T) {
	dir := t.TempDir()
	manifest := `
name = "Broken"
[[layers]]
id = "base"
  [[layers.traits]]
  id = "b1"
  image = "missing.png"
`
	path := filepath.Join(dir, "project.toml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := Load(path)
	if errors.GetCode(err) != errors.ErrCodeInvalidManifest {
		t.Errorf("code = %s, want INVALID_MANIFEST", errors.GetCode(err))
	}
}

func TestParseRejectsBadTOML(t *testing.T) {
	_, err := Parse([]byte("not = [valid"), "")
	if errors.GetCode(err) != errors.ErrCodeInvalidManifest {
		t.Errorf("code = %s, want INVALID_MANIFEST", errors.GetCode(err))
	}
}

func TestParseValidates(t *testing.T) {
	// empty layer list fails project validation, not TOML decoding
	_, err := Parse([]byte(`name = "Empty"`), "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("code = %s, want INVALID_CONFIG", errors.GetCode(err))
	}
}

func TestParseExplicitOrderAndInactiveCombo(t *testing.T) {
	data := `
name = "Ordered"
[[layers]]
id = "top"
order = 5
  [[layers.traits]]
  id = "t1"
[[layers]]
id = "bottom"
order = 0
  [[layers.traits]]
  id = "t2"
[[combinations]]
id = "off"
layers = ["top", "bottom"]
active = false
`
	p, err := Parse([]byte(data), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Layers[0].Order != 5 || p.Layers[1].Order != 0 {
		t.Errorf("orders = %d, %d", p.Layers[0].Order, p.Layers[1].Order)
	}
	if p.Combinations[0].Active {
		t.Error("explicit active=false ignored")
	}
}
