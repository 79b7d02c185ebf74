// Package badge maps elapsed streak time to an ordered achievement tier.
package badge

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Tier is one rung of the achievement ladder.
type Tier struct {
	ID          string `toml:"id" json:"id"`
	MinDays     int    `toml:"min_days" json:"min_days"`
	Title       string `toml:"title" json:"title"`
	Description string `toml:"description" json:"description"`
}

// Catalog is an immutable list of tiers sorted by strictly increasing MinDays,
// starting at zero.
type Catalog struct {
	tiers []Tier
	rank  map[string]int
}

// NewCatalog validates and freezes tiers.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, errors.New("badge catalog is empty")
	}
	if tiers[0].MinDays != 0 {
		return nil, fmt.Errorf("first tier %q must start at 0 days, got %d", tiers[0].ID, tiers[0].MinDays)
	}
	c := &Catalog{tiers: make([]Tier, len(tiers)), rank: make(map[string]int, len(tiers))}
	copy(c.tiers, tiers)
	for i, t := range c.tiers {
		if t.ID == "" {
			return nil, fmt.Errorf("tier %d has no id", i)
		}
		if _, dup := c.rank[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tier id %q", t.ID)
		}
		if i > 0 && t.MinDays <= c.tiers[i-1].MinDays {
			return nil, fmt.Errorf("tier %q min_days %d must exceed %q min_days %d", t.ID, t.MinDays, c.tiers[i-1].ID, c.tiers[i-1].MinDays)
		}
		c.rank[t.ID] = i
	}
	return c, nil
}

// DefaultCatalog returns the built-in ladder.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Tier{
		{ID: "seedling", MinDays: 0, Title: "Seedling", Description: "Every journey starts with a single day."},
		{ID: "sprout", MinDays: 3, Title: "Sprout", Description: "Three days in. The hardest part is behind you."},
		{ID: "sapling", MinDays: 7, Title: "Sapling", Description: "One full week."},
		{ID: "bloom", MinDays: 14, Title: "Bloom", Description: "Two weeks of steady growth."},
		{ID: "grove", MinDays: 30, Title: "Grove", Description: "A month of new habits."},
		{ID: "oak", MinDays: 60, Title: "Oak", Description: "Two months. Roots run deep."},
		{ID: "summit", MinDays: 90, Title: "Summit", Description: "Ninety days. A reboot complete."},
		{ID: "legend", MinDays: 180, Title: "Legend", Description: "Half a year."},
		{ID: "eternal", MinDays: 365, Title: "Eternal", Description: "A full year free."},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Tiers []Tier `toml:"tier"`
}

// LoadCatalog reads a TOML file of [[tier]] tables.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge catalog: %w", err)
	}
	return ParseCatalog(string(data))
}

// ParseCatalog decodes TOML catalog content.
func ParseCatalog(content string) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(content, &f); err != nil {
		return nil, fmt.Errorf("decode badge catalog: %w", err)
	}
	return NewCatalog(f.Tiers)
}

// Resolve returns the highest tier whose MinDays does not exceed elapsedDays.
// Negative input is treated as zero.
func (c *Catalog) Resolve(elapsedDays int) Tier {
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	lo, hi := 0, len(c.tiers)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.tiers[mid].MinDays <= elapsedDays {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return c.tiers[lo]
}

// Initial is the tier every streak starts from.
func (c *Catalog) Initial() Tier {
	return c.tiers[0]
}

// Rank returns the position of id in tier order.
func (c *Catalog) Rank(id string) (int, bool) {
	r, ok := c.rank[id]
	return r, ok
}

// Next returns the tier following id, if any.
func (c *Catalog) Next(id string) (Tier, bool) {
	r, ok := c.rank[id]
	if !ok || r+1 >= len(c.tiers) {
		return Tier{}, false
	}
	return c.tiers[r+1], true
}

// Tiers returns a copy of the ladder.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}
