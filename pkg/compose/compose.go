// Package compose renders generated items by stacking trait images.
//
// The engine decodes each layer's image, normalizes it to the output size
// with Lanczos resampling, and blends the layers bottom-up with a
// straight-alpha "over" operator before encoding the result as PNG. Decoded
// and size-normalized trait buffers are cached by content hash so items
// that reuse a trait skip the decode entirely; the cache is optional and
// its absence only costs speed.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/layerforge/layerforge/pkg/cache"
	"github.com/layerforge/layerforge/pkg/observability"
)

// Compositor is the compose capability consumed by the generation
// scheduler. Layer byte slices arrive in compositing order, bottom first.
type Compositor interface {
	// Compose stacks the layers into a width x height PNG.
	Compose(ctx context.Context, layers [][]byte, width, height int) ([]byte, error)

	// Preview renders a reduced-size composite of a base and one overlay.
	Preview(ctx context.Context, base, overlay []byte, width, height int) ([]byte, error)
}

// Engine is the imaging-backed Compositor.
type Engine struct {
	cache cache.Cache
	keyer cache.Keyer
}

// NewEngine creates a compositing engine. A nil cache disables buffer
// reuse; a nil keyer uses the default.
func NewEngine(c cache.Cache, keyer cache.Keyer) *Engine {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Engine{cache: c, keyer: keyer}
}

// Compose stacks the layers into a single width x height PNG image.
func (e *Engine) Compose(ctx context.Context, layers [][]byte, width, height int) ([]byte, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("compose: no layers")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("compose: invalid output size %dx%d", width, height)
	}

	result, err := e.layerBuffer(ctx, layers[0], width, height)
	if err != nil {
		return nil, fmt.Errorf("decode base layer: %w", err)
	}

	for i, data := range layers[1:] {
		overlay, err := e.layerBuffer(ctx, data, width, height)
		if err != nil {
			return nil, fmt.Errorf("decode layer %d: %w", i+1, err)
		}
		blendOver(result, overlay)
	}

	return encodePNG(result)
}

// Preview renders a reduced-size composite of a base image and a single
// overlay, for editor previews that do not need a full-size render.
func (e *Engine) Preview(ctx context.Context, base, overlay []byte, width, height int) ([]byte, error) {
	return e.Compose(ctx, [][]byte{base, overlay}, width, height)
}

// layerBuffer returns the decoded, size-normalized pixel buffer for one
// layer image, going through the cache when possible. Cached values hold
// the raw NRGBA pixels; width and height are part of the key.
func (e *Engine) layerBuffer(ctx context.Context, data []byte, width, height int) (*image.NRGBA, error) {
	key := e.keyer.TraitKey(cache.Hash(data), cache.TraitKeyOpts{Width: width, Height: height})

	if pix, hit, err := e.cache.Get(ctx, key); err == nil && hit && len(pix) == width*height*4 {
		observability.Cache().OnCacheHit(ctx, "trait")
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		copy(img.Pix, pix)
		return img, nil
	}
	observability.Cache().OnCacheMiss(ctx, "trait")

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	nrgba := imaging.Clone(img)
	if nrgba.Bounds().Dx() != width || nrgba.Bounds().Dy() != height {
		nrgba = imaging.Resize(nrgba, width, height, imaging.Lanczos)
	}

	if err := e.cache.Set(ctx, key, nrgba.Pix, cache.TTLTrait); err == nil {
		observability.Cache().OnCacheSet(ctx, "trait", len(nrgba.Pix))
	}
	return nrgba, nil
}

// blendOver composites overlay onto base in place using the straight-alpha
// "over" operator. Both images must share the same bounds.
func blendOver(base, overlay *image.NRGBA) {
	n := len(base.Pix)
	if len(overlay.Pix) < n {
		n = len(overlay.Pix)
	}
	for i := 0; i+3 < n; i += 4 {
		oa := float64(overlay.Pix[i+3]) / 255.0
		if oa == 1.0 {
			copy(base.Pix[i:i+4], overlay.Pix[i:i+4])
			continue
		}
		if oa == 0.0 {
			continue
		}
		ba := float64(base.Pix[i+3]) / 255.0
		ra := oa + ba*(1.0-oa)
		if ra == 0.0 {
			base.Pix[i], base.Pix[i+1], base.Pix[i+2], base.Pix[i+3] = 0, 0, 0, 0
			continue
		}
		for c := 0; c < 3; c++ {
			ov := float64(overlay.Pix[i+c])
			bv := float64(base.Pix[i+c])
			base.Pix[i+c] = uint8((ov*oa + bv*ba*(1.0-oa)) / ra)
		}
		base.Pix[i+3] = uint8(ra * 255.0)
	}
}

// encodePNG serializes the buffer as PNG bytes.
func encodePNG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Ensure Engine implements Compositor.
var _ Compositor = (*Engine)(nil)
