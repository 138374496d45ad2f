// Package texture decodes texture images into NRGBA and keeps them in a
// concurrency-safe cache.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/Faultbox/meshcook/internal/logger"
)

// ErrUnsupportedImage reports data no decoder accepts.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Decode reads an image file and returns it as NRGBA. PNG, JPEG and BMP are
// recognized by content; TGA has no signature and is recognized by extension.
func Decode(path string) (*image.NRGBA, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("texture: read %s: %w", path, err)
	}

	img, err := decodeBytes(raw, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("texture: decode %s: %w", path, err)
	}
	return toNRGBA(img), nil
}

func decodeBytes(raw []byte, ext string) (image.Image, error) {
	kind, _ := filetype.Match(raw)
	r := bytes.NewReader(raw)

	switch kind.Extension {
	case "png":
		return png.Decode(r)
	case "jpg":
		return jpeg.Decode(r)
	case "bmp":
		return bmp.Decode(r)
	}

	if kind == filetype.Unknown && ext == ".tga" {
		return tga.Decode(r)
	}
	if kind == filetype.Unknown {
		return nil, ErrUnsupportedImage
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, kind.MIME.Value)
}

// toNRGBA converts any image to NRGBA format.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Loader decodes textures once and caches them by path.
type Loader struct {
	mu    sync.RWMutex
	items map[string]*image.NRGBA

	// Stats
	decoded int
	failed  int
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{
		items: make(map[string]*image.NRGBA),
	}
}

// Load decodes the image at path into the cache. Already cached paths are
// not decoded again.
func (l *Loader) Load(path string) error {
	_, err := l.Resolve(path)
	return err
}

// Resolve returns the cached image for path, decoding it on first use.
func (l *Loader) Resolve(path string) (*image.NRGBA, error) {
	key := filepath.ToSlash(filepath.Clean(path))

	// Fast path: read lock
	l.mu.RLock()
	if img, ok := l.items[key]; ok {
		l.mu.RUnlock()
		return img, nil
	}
	l.mu.RUnlock()

	img, err := Decode(path)

	// Write lock with double-check
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.failed++
		logger.Named("texture").Warn("texture decode failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	if existing, ok := l.items[key]; ok {
		return existing, nil
	}
	l.items[key] = img
	l.decoded++

	logger.Named("texture").Debug("texture loaded",
		zap.String("path", key),
		zap.Int("width", img.Rect.Dx()),
		zap.Int("height", img.Rect.Dy()))
	return img, nil
}

// Get returns a cached image without decoding.
func (l *Loader) Get(path string) (*image.NRGBA, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	img, ok := l.items[filepath.ToSlash(filepath.Clean(path))]
	return img, ok
}

// Len returns the number of cached images.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Stats returns how many images were decoded and how many failed.
func (l *Loader) Stats() (decoded, failed int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.decoded, l.failed
}

// Clear drops every cached image.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = make(map[string]*image.NRGBA)
}
