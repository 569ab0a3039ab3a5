package imaging

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

var fallbackExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// FallbackPool is a directory of stock images used when generation fails.
type FallbackPool struct {
	dir   string
	files []string
}

// NewFallbackPool lists the image files in dir. A missing directory yields an
// empty pool; Pick then reports domain.ErrNoImageAvailable.
func NewFallbackPool(dir string) (*FallbackPool, error) {
	pool := &FallbackPool{dir: dir}
	if strings.TrimSpace(dir) == "" {
		return pool, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return pool, nil
		}
		return nil, fmt.Errorf("read fallback dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fallbackExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			pool.files = append(pool.files, e.Name())
		}
	}
	sort.Strings(pool.files)
	return pool, nil
}

// Len returns the number of candidate images.
func (p *FallbackPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.files)
}

// Pick deterministically chooses an image for topic. Files whose name shares
// a word with the topic are preferred; the final choice is an FNV-1a hash of
// the normalized topic over the candidates.
func (p *FallbackPool) Pick(topic string) (domain.ImageAsset, error) {
	if p.Len() == 0 {
		return domain.ImageAsset{}, domain.ErrNoImageAvailable
	}

	key := domain.NormalizeTopic(topic)
	candidates := p.matching(key)
	if len(candidates) == 0 {
		candidates = p.files
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	name := candidates[int(h.Sum32()%uint32(len(candidates)))]

	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("read fallback image %s: %w", name, err)
	}
	w, hgt, mime, err := Inspect(data)
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("fallback image %s: %w", name, err)
	}
	return domain.ImageAsset{
		Data:     data,
		Width:    w,
		Height:   hgt,
		MimeType: mime,
		Name:     name,
		Source:   domain.SourceFallback,
	}, nil
}

func (p *FallbackPool) matching(key string) []string {
	words := make(map[string]bool)
	for _, w := range tokens(key) {
		words[w] = true
	}
	if len(words) == 0 {
		return nil
	}
	var out []string
	for _, name := range p.files {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		for _, tok := range tokens(strings.ToLower(stem)) {
			if words[tok] {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// tokens splits on anything that is not a letter or digit and drops short words.
func tokens(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := parts[:0]
	for _, p := range parts {
		if len([]rune(p)) >= 3 {
			out = append(out, p)
		}
	}
	return out
}
