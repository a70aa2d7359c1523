package compose

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/layerforge/layerforge/pkg/cache"
)

// solidPNG returns a w x h PNG filled with the given color.
func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func decodeNRGBA(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	out := image.NewNRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func TestComposeOpaqueOverlayWins(t *testing.T) {
	e := NewEngine(nil, nil)
	base := solidPNG(t, 4, 4, color.NRGBA{R: 255, A: 255})
	over := solidPNG(t, 4, 4, color.NRGBA{B: 255, A: 255})

	out, err := e.Compose(context.Background(), [][]byte{base, over}, 4, 4)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	got := decodeNRGBA(t, out).NRGBAAt(1, 1)
	if got.B != 255 || got.R != 0 || got.A != 255 {
		t.Errorf("got %+v, want opaque blue", got)
	}
}

func TestComposeTransparentOverlayKeepsBase(t *testing.T) {
	e := NewEngine(nil, nil)
	base := solidPNG(t, 4, 4, color.NRGBA{G: 200, A: 255})
	over := solidPNG(t, 4, 4, color.NRGBA{})

	out, err := e.Compose(context.Background(), [][]byte{base, over}, 4, 4)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	got := decodeNRGBA(t, out).NRGBAAt(2, 2)
	if got.G != 200 || got.A != 255 {
		t.Errorf("got %+v, want base green preserved", got)
	}
}

func TestComposeHalfAlphaBlend(t *testing.T) {
	e := NewEngine(nil, nil)
	base := solidPNG(t, 2, 2, color.NRGBA{R: 255, A: 255})
	over := solidPNG(t, 2, 2, color.NRGBA{B: 255, A: 128})

	out, err := e.Compose(context.Background(), [][]byte{base, over}, 2, 2)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	got := decodeNRGBA(t, out).NRGBAAt(0, 0)
	if got.A != 255 {
		t.Errorf("alpha = %d, want 255", got.A)
	}
	// over 50% blue on opaque red yields roughly half of each channel
	if got.R < 118 || got.R > 137 || got.B < 118 || got.B > 137 {
		t.Errorf("got %+v, want ~50/50 red/blue mix", got)
	}
}

func TestComposeResizesLayersToOutput(t *testing.T) {
	e := NewEngine(nil, nil)
	base := solidPNG(t, 8, 8, color.NRGBA{R: 255, A: 255})

	out, err := e.Compose(context.Background(), [][]byte{base}, 4, 4)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodeNRGBA(t, out)
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Errorf("bounds = %v, want 4x4", img.Bounds())
	}
}

func TestComposeRejectsEmptyInput(t *testing.T) {
	e := NewEngine(nil, nil)
	if _, err := e.Compose(context.Background(), nil, 4, 4); err == nil {
		t.Error("expected error for empty layer list")
	}
	if _, err := e.Compose(context.Background(), [][]byte{{1}}, 0, 4); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestComposeCachesDecodedLayers(t *testing.T) {
	mc := cache.NewMemoryCache(cache.DefaultMaxBytes)
	defer mc.Close()
	e := NewEngine(mc, nil)

	base := solidPNG(t, 4, 4, color.NRGBA{R: 10, A: 255})
	ctx := context.Background()

	if _, err := e.Compose(ctx, [][]byte{base}, 4, 4); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if mc.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1", mc.Len())
	}

	// second call must hit the cached buffer and produce identical output
	first, _ := e.Compose(ctx, [][]byte{base}, 4, 4)
	second, err := e.Compose(ctx, [][]byte{base}, 4, 4)
	if err != nil {
		t.Fatalf("Compose second: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("cached compose differs from fresh compose")
	}
}

func TestPreview(t *testing.T) {
	e := NewEngine(nil, nil)
	base := solidPNG(t, 8, 8, color.NRGBA{R: 255, A: 255})
	over := solidPNG(t, 8, 8, color.NRGBA{B: 255, A: 255})

	out, err := e.Preview(context.Background(), base, over, 4, 4)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	img := decodeNRGBA(t, out)
	if img.Bounds().Dx() != 4 {
		t.Errorf("preview width = %d, want 4", img.Bounds().Dx())
	}
	if got := img.NRGBAAt(1, 1); got.B != 255 {
		t.Errorf("got %+v, want overlay blue", got)
	}
}

func TestDataURL(t *testing.T) {
	url := DataURL([]byte{0x89, 'P', 'N', 'G'})
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected prefix: %s", url)
	}
}
