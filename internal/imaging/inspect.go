// Package imaging acquires the post image and fits it to platform limits.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Inspect decodes just enough of data to report its dimensions and MIME type.
func Inspect(data []byte) (width, height int, mimeType string, err error) {
	if len(data) == 0 {
		return 0, 0, "", fmt.Errorf("image payload is empty")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, "", fmt.Errorf("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, "image/" + format, nil
}
