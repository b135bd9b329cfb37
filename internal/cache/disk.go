package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	compressedExt = ".zst"
	plainExt      = ".pcm"
)

// DiskCache stores values as files in one directory, optionally compressed
// with zstd. The index is rebuilt from the directory on open, so entries
// written by an earlier run are found again.
type DiskCache struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry // by file name

	mu     sync.Mutex
	stats  Stats
	closed bool
}

type diskEntry struct {
	name       string
	size       int64
	lastAccess time.Time
}

// NewDiskCache opens or creates a disk cache. A compressionLevel of zero
// stores values uncompressed.
func NewDiskCache(basePath string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	// Old entries may be compressed even if compression is now off.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := dc.scan(); err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	return dc, nil
}

// Get reads the value for key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.lookup(key)
	if !ok || dc.closed {
		dc.stats.Misses++
		return nil, false
	}

	path := filepath.Join(dc.basePath, entry.name)
	data, err := os.ReadFile(path)
	if err == nil && strings.HasSuffix(entry.name, compressedExt) {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		// Missing or corrupted file; forget it
		dc.remove(entry)
		dc.stats.Misses++
		return nil, false
	}

	now := time.Now()
	entry.lastAccess = now
	_ = os.Chtimes(path, now, now)

	dc.stats.Hits++
	return data, true
}

// Put writes value under key.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrClosed
	}

	data := value
	ext := plainExt
	// Only compress if > 1KB and it actually helps
	if dc.encoder != nil && len(value) > 1024 {
		if compressed := dc.encoder.EncodeAll(value, nil); len(compressed) < len(value) {
			data = compressed
			ext = compressedExt
		}
	}

	size := int64(len(data))
	if size > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.lookup(key); ok {
		dc.remove(existing)
	}
	for dc.size+size > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	name := fileStem(key) + ext
	if err := writeFileAtomic(filepath.Join(dc.basePath, name), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[name] = &diskEntry{name: name, size: size, lastAccess: time.Now()}
	dc.size += size
	return nil
}

// RemoveOlderThan deletes entries not accessed since cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, entry := range dc.index {
		if entry.lastAccess.Before(cutoff) {
			dc.remove(entry)
			removed++
		}
	}
	return removed
}

// Stats returns tier statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Capacity = dc.capacity
	stats.Size = dc.size
	stats.Items = int64(len(dc.index))
	return stats
}

// Close releases the codecs. Files stay on disk.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	dc.closed = true
	if dc.encoder != nil {
		dc.encoder.Close()
	}
	dc.decoder.Close()
	return nil
}

func (dc *DiskCache) scan() error {
	entries, err := os.ReadDir(dc.basePath)
	if err != nil {
		return err
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || (filepath.Ext(name) != compressedExt && filepath.Ext(name) != plainExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		dc.index[name] = &diskEntry{name: name, size: info.Size(), lastAccess: info.ModTime()}
		dc.size += info.Size()
	}
	return nil
}

// lookup must be called with the lock held.
func (dc *DiskCache) lookup(key string) (*diskEntry, bool) {
	stem := fileStem(key)
	if e, ok := dc.index[stem+compressedExt]; ok {
		return e, true
	}
	e, ok := dc.index[stem+plainExt]
	return e, ok
}

// remove must be called with the lock held.
func (dc *DiskCache) remove(entry *diskEntry) {
	os.Remove(filepath.Join(dc.basePath, entry.name))
	delete(dc.index, entry.name)
	dc.size -= entry.size
}

func (dc *DiskCache) evictOldest() {
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.Before(entries[j].lastAccess)
	})
	if len(entries) > 0 {
		dc.remove(entries[0])
		dc.stats.Evictions++
		dc.stats.LastEvict = time.Now()
	}
}

func fileStem(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}

func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}

	return os.Rename(tempPath, path)
}
