// Package migrate runs ordered, version-gated SQL upgrade scripts against a
// database that records its schema version in a one-row version table.
package migrate

import (
	"fmt"
	"sort"

	"github.com/actinodb/migrate/script"
)

// Chain is a validated sequence of upgrade scripts indexed by the version
// they upgrade from. A chain is contiguous: every script's target version is
// the next script's starting version.
type Chain struct {
	scripts []script.Script
	byFrom  map[int]script.Script
}

// NewChain validates scripts and arranges them into a chain. Each script must
// pass its own convention checks, no two scripts may start from the same
// version, and the sequence may not have gaps.
func NewChain(scripts []script.Script) (*Chain, error) {
	if len(scripts) == 0 {
		return nil, fmt.Errorf("chain: no scripts")
	}

	ordered := make([]script.Script, len(scripts))
	copy(ordered, scripts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].From < ordered[j].From })

	byFrom := make(map[int]script.Script, len(ordered))
	for i, s := range ordered {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("chain: %w", err)
		}
		if prev, ok := byFrom[s.From]; ok {
			return nil, fmt.Errorf("chain: %s and %s both upgrade from version %d", prev.Name, s.Name, s.From)
		}
		if i > 0 && s.From != ordered[i-1].To {
			return nil, fmt.Errorf("chain: gap between %s and %s", ordered[i-1].Name, s.Name)
		}
		byFrom[s.From] = s
	}

	return &Chain{scripts: ordered, byFrom: byFrom}, nil
}

// Next returns the script that upgrades from the given version.
func (c *Chain) Next(from int) (script.Script, bool) {
	s, ok := c.byFrom[from]
	return s, ok
}

// Scripts returns the chain's scripts in ascending version order.
func (c *Chain) Scripts() []script.Script {
	out := make([]script.Script, len(c.scripts))
	copy(out, c.scripts)
	return out
}

// Oldest returns the lowest version any script upgrades from.
func (c *Chain) Oldest() int {
	return c.scripts[0].From
}

// Latest returns the highest version the chain can reach.
func (c *Chain) Latest() int {
	return c.scripts[len(c.scripts)-1].To
}

func (c *Chain) Len() int {
	return len(c.scripts)
}
