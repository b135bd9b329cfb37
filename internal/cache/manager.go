package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager layers the memory tier over the disk tier. Disk hits are promoted
// into memory.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache // nil when the disk tier is disabled
	config Config

	mu       sync.Mutex
	promoted int64
}

// NewManager builds the tiers described by cfg and prunes expired disk
// entries.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		config: cfg,
	}

	if cfg.DiskCapacity > 0 && cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk

		if cfg.MaxAge > 0 {
			if n := disk.RemoveOlderThan(time.Now().Add(-cfg.MaxAge)); n > 0 {
				log.Debug("Pruned expired cache entries", "count", n)
			}
		}
	}

	return m, nil
}

// Get looks in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, true
	}
	if m.disk == nil {
		return nil, false
	}

	data, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}

	if err := m.memory.Put(key, data); err == nil {
		m.mu.Lock()
		m.promoted++
		m.mu.Unlock()
	}
	return data, true
}

// Put writes through to both tiers. A value too large for memory may still
// land on disk.
func (m *Manager) Put(key string, value []byte) error {
	memErr := m.memory.Put(key, value)
	if memErr != nil && memErr != ErrItemTooLarge {
		return fmt.Errorf("memory cache: %w", memErr)
	}
	if m.disk == nil {
		return memErr
	}
	if err := m.disk.Put(key, value); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Stats returns per-tier statistics.
func (m *Manager) Stats() map[Level]Stats {
	stats := map[Level]Stats{LevelMemory: m.memory.Stats()}
	if m.disk != nil {
		stats[LevelDisk] = m.disk.Stats()
	}
	return stats
}

// Promotions returns how many disk hits were copied into memory.
func (m *Manager) Promotions() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promoted
}

// Close closes the disk tier and logs a summary.
func (m *Manager) Close() error {
	for level, s := range m.Stats() {
		log.Debug("Cache closed", "level", level, "stats", s.String())
	}
	if m.disk != nil {
		return m.disk.Close()
	}
	return nil
}
