package sim

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

// Counter tallies completed changes by risk tier.
type Counter struct {
	mu      sync.Mutex
	changes int
	byTier  map[risk.Tier]int
}

func (c *Counter) Add(ch Change) {
	tier := risk.MustClassify(ch.Probability, ch.Severity).Tier
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byTier == nil {
		c.byTier = make(map[risk.Tier]int)
	}
	c.changes++
	c.byTier[tier]++
}

func (c *Counter) Changes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes
}

func (c *Counter) ByTier(t risk.Tier) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byTier[t]
}

// String renders "low=1 medium=2 ..." in tier order.
func (c *Counter) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tiers := make([]risk.Tier, 0, len(c.byTier))
	for t := range c.byTier {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	parts := make([]string, 0, len(tiers))
	for _, t := range tiers {
		parts = append(parts, fmt.Sprintf("%s=%d", t, c.byTier[t]))
	}
	return strings.Join(parts, " ")
}
