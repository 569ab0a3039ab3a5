package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

const (
	// MaxQuality is the first rung of the JPEG quality ladder.
	MaxQuality = 95
	// QualityStep is the distance between rungs.
	QualityStep = 10
	// DefaultMinQuality is the ladder floor when none is configured.
	DefaultMinQuality = 20
)

// Normalizer fits images to byte and pixel ceilings. It is deterministic: the
// same input and constraints always produce the same bytes.
type Normalizer struct {
	MinQuality int
}

// NewNormalizer returns a Normalizer with the given quality floor.
func NewNormalizer(minQuality int) Normalizer {
	return Normalizer{MinQuality: minQuality}
}

// Ladder returns the quality steps tried in order. The last step is always
// the floor.
func (n Normalizer) Ladder() []int {
	floor := n.MinQuality
	if floor <= 0 {
		floor = DefaultMinQuality
	}
	if floor > MaxQuality {
		floor = MaxQuality
	}
	var steps []int
	for q := MaxQuality; q > floor; q -= QualityStep {
		steps = append(steps, q)
	}
	return append(steps, floor)
}

// Normalize returns asset unchanged when it already fits c. Otherwise it
// scales the image down in one pass and re-encodes it as JPEG, walking the
// quality ladder until the byte ceiling is met. It fails with
// domain.ErrNormalizationInfeasible when the floor is still too large.
func (n Normalizer) Normalize(asset domain.ImageAsset, c domain.Constraints) (domain.ImageAsset, error) {
	if asset.Width <= 0 || asset.Height <= 0 {
		w, h, mime, err := Inspect(asset.Data)
		if err != nil {
			return domain.ImageAsset{}, fmt.Errorf("%w: %v", domain.ErrNormalizationInfeasible, err)
		}
		asset.Width, asset.Height = w, h
		if asset.MimeType == "" {
			asset.MimeType = mime
		}
	}
	if c.Satisfied(asset) {
		return asset, nil
	}

	src, _, err := image.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("%w: decode: %v", domain.ErrNormalizationInfeasible, err)
	}

	bounds := src.Bounds()
	w, h := FitWithin(bounds.Dx(), bounds.Dy(), c.MaxWidth, c.MaxHeight)
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha channel; flatten onto white.
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	for _, q := range n.Ladder() {
		buf.Reset()
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: q}); err != nil {
			return domain.ImageAsset{}, fmt.Errorf("encode jpeg q=%d: %w", q, err)
		}
		if c.MaxBytes <= 0 || buf.Len() <= c.MaxBytes {
			return domain.ImageAsset{
				Data:     append([]byte(nil), buf.Bytes()...),
				Width:    w,
				Height:   h,
				MimeType: "image/jpeg",
				Name:     jpegName(asset.Name),
				Source:   asset.Source,
			}, nil
		}
	}

	return domain.ImageAsset{}, fmt.Errorf("%w: %d bytes at quality %d, limit %d",
		domain.ErrNormalizationInfeasible, buf.Len(), n.Ladder()[len(n.Ladder())-1], c.MaxBytes)
}

// FitWithin scales w×h to fit inside maxW×maxH preserving aspect ratio.
// Zero ceilings are unbounded. It never upscales and never returns a side
// below one pixel or above its ceiling.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	ratio := 1.0
	if maxW > 0 && w > maxW {
		ratio = math.Min(ratio, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		ratio = math.Min(ratio, float64(maxH)/float64(h))
	}
	if ratio >= 1 {
		return w, h
	}
	nw := clampSide(int(math.Round(float64(w)*ratio)), maxW)
	nh := clampSide(int(math.Round(float64(h)*ratio)), maxH)
	return nw, nh
}

func clampSide(v, ceiling int) int {
	if ceiling > 0 && v > ceiling {
		v = ceiling
	}
	if v < 1 {
		v = 1
	}
	return v
}

func jpegName(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}
