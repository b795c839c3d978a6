// Package partition maps partition names to block devices, standing in for
// the platform's partition-table discovery. Firmware registers its
// wear-levelled devices here; host tooling fills a registry from the YAML
// partition table.
package partition

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/INLOpen/flashfifo/blockdev"
	"github.com/INLOpen/flashfifo/config"
	"github.com/INLOpen/flashfifo/core"
)

// Opener produces the block device backing a partition. It is invoked on
// every mount, so an Opener for a shared device should return the same
// instance each time.
type Opener func() (blockdev.BlockDevice, error)

// Registry holds the known partitions.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register adds or replaces the opener for a partition name.
func (r *Registry) Register(name string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = open
}

// RegisterDevice registers an already-constructed device under a name.
func (r *Registry) RegisterDevice(name string, dev blockdev.BlockDevice) {
	r.Register(name, func() (blockdev.BlockDevice, error) { return dev, nil })
}

// Open resolves a partition name to its block device.
func (r *Registry) Open(name string) (blockdev.BlockDevice, error) {
	r.mu.RLock()
	open, ok := r.openers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("partition %q: %w", name, core.ErrNotFound)
	}
	dev, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open partition %q: %w", name, err)
	}
	return dev, nil
}

// Names returns the registered partition names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a registry of file-backed partitions from the YAML
// partition table. Images marked create are created erased if missing.
// Each partition's device is opened once and shared across mounts.
func FromConfig(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	for _, p := range cfg.Partitions {
		p := p
		var (
			once sync.Once
			dev  blockdev.BlockDevice
			err  error
		)
		reg.Register(p.Name, func() (blockdev.BlockDevice, error) {
			once.Do(func() {
				dev, err = openImage(p)
			})
			return dev, err
		})
	}
	return reg, nil
}

func openImage(p config.PartitionConfig) (blockdev.BlockDevice, error) {
	if p.Create {
		if _, statErr := os.Stat(p.Path); os.IsNotExist(statErr) {
			return blockdev.CreateFile(p.Path, p.Sectors, p.SectorSize)
		}
	}
	return blockdev.OpenFile(p.Path, p.SectorSize)
}
