package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"reflect"
	"testing"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func flatPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 80, B: uint8(y), A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func assetFrom(t *testing.T, data []byte) domain.ImageAsset {
	t.Helper()
	w, h, mime, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	return domain.ImageAsset{Data: data, Width: w, Height: h, MimeType: mime, Name: "generated.png"}
}

func TestLadderEndsAtFloor(t *testing.T) {
	got := NewNormalizer(20).Ladder()
	want := []int{95, 85, 75, 65, 55, 45, 35, 25, 20}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ladder = %v, want %v", got, want)
	}
	got = NewNormalizer(25).Ladder()
	if got[len(got)-1] != 25 || got[len(got)-2] != 35 {
		t.Fatalf("ladder with floor 25 = %v", got)
	}
}

func TestNormalizeReturnsFittingAssetUnchanged(t *testing.T) {
	data := flatPNG(t, 100, 80)
	in := assetFrom(t, data)

	out, err := NewNormalizer(20).Normalize(in, domain.Constraints{MaxBytes: len(data), MaxWidth: 100, MaxHeight: 80})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !bytes.Equal(out.Data, data) || out.MimeType != "image/png" {
		t.Fatalf("expected byte-identical asset")
	}
}

func TestNormalizeFitsLargeNoisyImage(t *testing.T) {
	in := assetFrom(t, noisePNG(t, 2000, 2000))
	c := domain.Constraints{MaxBytes: 976 * 1024, MaxWidth: 720, MaxHeight: 720}

	out, err := NewNormalizer(20).Normalize(in, c)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Width > 720 || out.Height > 720 {
		t.Fatalf("dimensions %dx%d exceed ceiling", out.Width, out.Height)
	}
	if out.Size() > 976*1024 {
		t.Fatalf("size %d exceeds ceiling", out.Size())
	}
	if out.MimeType != "image/jpeg" || out.Name != "generated.jpg" {
		t.Fatalf("unexpected output type %q name %q", out.MimeType, out.Name)
	}
	w, h, _, err := Inspect(out.Data)
	if err != nil || w != out.Width || h != out.Height {
		t.Fatalf("encoded dimensions %dx%d do not match asset %dx%d (err=%v)", w, h, out.Width, out.Height, err)
	}
}

func TestNormalizePreservesAspectRatio(t *testing.T) {
	in := assetFrom(t, flatPNG(t, 2000, 1000))

	out, err := NewNormalizer(20).Normalize(in, domain.Constraints{MaxWidth: 720, MaxHeight: 720})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Width != 720 || out.Height != 360 {
		t.Fatalf("expected 720x360, got %dx%d", out.Width, out.Height)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	in := assetFrom(t, noisePNG(t, 300, 200))
	c := domain.Constraints{MaxBytes: 40 * 1024, MaxWidth: 150, MaxHeight: 150}

	first, err := NewNormalizer(20).Normalize(in, c)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	second, err := NewNormalizer(20).Normalize(in, c)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("normalization is not deterministic")
	}
}

func TestNormalizeReportsInfeasible(t *testing.T) {
	in := assetFrom(t, noisePNG(t, 64, 64))

	_, err := NewNormalizer(20).Normalize(in, domain.Constraints{MaxBytes: 100})
	if !errors.Is(err, domain.ErrNormalizationInfeasible) {
		t.Fatalf("expected ErrNormalizationInfeasible, got %v", err)
	}
	if domain.KindOf(err) != domain.KindInfeasible {
		t.Fatalf("expected infeasible kind, got %v", domain.KindOf(err))
	}
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{2000, 1000, 720, 720, 720, 360},
		{1000, 2000, 720, 720, 360, 720},
		{500, 400, 720, 720, 500, 400},
		{5000, 1, 100, 100, 100, 1},
		{3000, 2000, 0, 500, 750, 500},
	}
	for _, tc := range cases {
		w, h := FitWithin(tc.w, tc.h, tc.maxW, tc.maxH)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("FitWithin(%d,%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.maxW, tc.maxH, w, h, tc.wantW, tc.wantH)
		}
	}
}
