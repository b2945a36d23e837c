// Package id generates message identifiers
package id

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator generates unique IDs
type Generator interface {
	Generate() string
}

// uuidGenerator produces "<prefix>-<uuid>" identifiers
type uuidGenerator struct {
	prefix string
}

// NewUUIDGenerator returns a generator backed by random UUIDs.
// An empty prefix yields bare UUID strings.
func NewUUIDGenerator(prefix string) Generator {
	return &uuidGenerator{prefix: prefix}
}

func (g *uuidGenerator) Generate() string {
	u := uuid.New().String()
	if g.prefix == "" {
		return u
	}
	return g.prefix + "-" + u
}

// sequentialGenerator generates sequential numeric IDs
type sequentialGenerator struct {
	prefix  string
	counter uint64
}

// NewSequentialGenerator creates a generator returning prefix-1, prefix-2, ...
// Tests use it to get predictable message IDs.
func NewSequentialGenerator(prefix string) Generator {
	return &sequentialGenerator{prefix: prefix}
}

func (g *sequentialGenerator) Generate() string {
	count := atomic.AddUint64(&g.counter, 1)
	if g.prefix != "" {
		return fmt.Sprintf("%s-%d", g.prefix, count)
	}
	return fmt.Sprintf("%d", count)
}

// Short returns the leading part of a generated ID for display.
// The prefix, if any, is kept.
func Short(full string) string {
	prefix := ""
	rest := full
	if i := strings.Index(full, "-"); i > 0 && i < len(full)-1 {
		if _, err := uuid.Parse(full[i+1:]); err == nil {
			prefix = full[:i+1]
			rest = full[i+1:]
		}
	}
	if _, err := uuid.Parse(rest); err != nil {
		return full
	}
	return prefix + rest[:8]
}
