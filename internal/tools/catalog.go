// ABOUTME: Static catalog of tools built lazily on first use.
// ABOUTME: Population runs once; afterwards the catalog is read-only.

package tools

import (
	"log/slog"
	"sync"
)

// Constructor builds one tool.
type Constructor func() Tool

// Catalog is the set of tools served by one transport.
type Catalog struct {
	constructors []Constructor
	logger       *slog.Logger

	once      sync.Once
	instances []*Instance
	byName    map[string]*Instance
}

// NewCatalog creates a catalog. Constructors run on first use, in order.
func NewCatalog(logger *slog.Logger, constructors ...Constructor) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{constructors: constructors, logger: logger}
}

func (c *Catalog) load() {
	c.once.Do(func() {
		c.byName = make(map[string]*Instance, len(c.constructors))
		for _, ctor := range c.constructors {
			t := ctor()
			if t == nil {
				continue
			}
			inst := NewInstance(t, c.logger)
			if _, dup := c.byName[inst.Name()]; dup {
				c.logger.Warn("duplicate tool name, keeping first", "tool", inst.Name())
				continue
			}
			c.byName[inst.Name()] = inst
			c.instances = append(c.instances, inst)
			c.logger.Debug("loaded tool", "tool", inst.Name())
		}
		c.logger.Info("tools loaded", "count", len(c.instances))
	})
}

// List returns every tool in registration order.
func (c *Catalog) List() []*Instance {
	c.load()
	return c.instances
}

// Find looks up a tool by exact name.
func (c *Catalog) Find(name string) (*Instance, bool) {
	c.load()
	inst, ok := c.byName[name]
	return inst, ok
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	c.load()
	return len(c.instances)
}
