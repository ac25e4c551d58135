// Package cache stores original and normalized images in a disk cache fronted
// by an in-memory LRU.
package cache

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/peterbourgon/diskv/v3"
)

const (
	// grouping of chars per directory depth
	transformBlockSize = 5
	defaultLRUSize     = 128
	defaultDiskMemory  = 1024 * 1024 * 1024
)

var ErrNotFound = errors.New("cache: key not found")

type Options struct {
	BasePath      string
	MaxDiskMemory uint64
	LRUEnabled    bool
	LRUSize       int
}

type Stats struct {
	FileCacheHits   uint64 `json:"file_hits"`
	FileCacheMisses uint64 `json:"file_misses"`
	LruCacheHits    uint64 `json:"lru_hits"`
	LruCacheMisses  uint64 `json:"lru_misses"`
	LruLen          int    `json:"lru_len"`
}

type Provider struct {
	disk *diskv.Diskv
	lru  *lru.Cache[string, []byte]

	fileHits, fileMisses atomic.Uint64
	lruHits, lruMisses   atomic.Uint64
}

func New(opts Options) (*Provider, error) {
	if opts.BasePath == "" {
		return nil, errors.New("cache: base path is required")
	}
	if opts.MaxDiskMemory == 0 {
		opts.MaxDiskMemory = defaultDiskMemory
	}

	p := &Provider{
		disk: diskv.New(diskv.Options{
			BasePath:     opts.BasePath,
			Transform:    blockTransform,
			CacheSizeMax: opts.MaxDiskMemory,
		}),
	}

	if opts.LRUEnabled {
		size := opts.LRUSize
		if size <= 0 {
			size = defaultLRUSize
		}
		l, err := lru.New[string, []byte](size)
		if err != nil {
			return nil, fmt.Errorf("cache: create lru: %w", err)
		}
		p.lru = l
	}

	return p, nil
}

// Key derives a filesystem safe cache key from its parts.
func Key(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Used by diskv to build the folder structure
func blockTransform(s string) []string {
	var (
		sliceSize = len(s) / transformBlockSize
		pathSlice = make([]string, sliceSize)
	)

	for i := 0; i < sliceSize; i++ {
		from, to := i*transformBlockSize, (i*transformBlockSize)+transformBlockSize
		pathSlice[i] = s[from:to]
	}

	return pathSlice
}

func (p *Provider) Contains(key string) bool {
	if p.lru != nil && p.lru.Contains(key) {
		return true
	}
	return p.disk.Has(key)
}

func (p *Provider) Get(key string) ([]byte, error) {
	if p.lru != nil {
		if buf, ok := p.lru.Get(key); ok {
			p.lruHits.Add(1)
			return buf, nil
		}
		p.lruMisses.Add(1)
	}

	if !p.disk.Has(key) {
		p.fileMisses.Add(1)
		return nil, ErrNotFound
	}

	buf, err := p.disk.Read(key)
	if err != nil {
		p.fileMisses.Add(1)
		return nil, fmt.Errorf("cache: read %s: %w", key, err)
	}
	p.fileHits.Add(1)

	if p.lru != nil {
		p.lru.Add(key, buf)
	}
	return buf, nil
}

// GetImage decodes a cached image. Entries that fail to decode are evicted.
func (p *Provider) GetImage(key string) (image.Image, string, error) {
	buf, err := p.Get(key)
	if err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		_ = p.Delete(key)
		return nil, "", fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return img, format, nil
}

func (p *Provider) Set(key string, buf []byte) error {
	if p.lru != nil {
		p.lru.Add(key, buf)
	}
	return p.disk.Write(key, buf)
}

// SetImage encodes img as png when format is "png" and as jpeg otherwise.
func (p *Provider) SetImage(key string, img image.Image, format string) error {
	buf := new(bytes.Buffer)
	if err := Encode(buf, img, format); err != nil {
		return err
	}
	return p.Set(key, buf.Bytes())
}

func (p *Provider) Delete(key string) error {
	if p.lru != nil {
		p.lru.Remove(key)
	}
	if !p.disk.Has(key) {
		return nil
	}
	return p.disk.Erase(key)
}

func (p *Provider) DeleteAll() error {
	if p.lru != nil {
		p.lru.Purge()
	}
	return p.disk.EraseAll()
}

func (p *Provider) Stats() Stats {
	s := Stats{
		FileCacheHits:   p.fileHits.Load(),
		FileCacheMisses: p.fileMisses.Load(),
		LruCacheHits:    p.lruHits.Load(),
		LruCacheMisses:  p.lruMisses.Load(),
	}
	if p.lru != nil {
		s.LruLen = p.lru.Len()
	}
	return s
}

func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpeg.DefaultQuality})
	}
}
