package badge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveBoundaries(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		days int
		want string
	}{
		{-5, "seedling"},
		{0, "seedling"},
		{2, "seedling"},
		{3, "sprout"},
		{6, "sprout"},
		{7, "sapling"},
		{29, "bloom"},
		{30, "grove"},
		{364, "legend"},
		{365, "eternal"},
		{10_000, "eternal"},
	}
	for _, tt := range tests {
		if got := c.Resolve(tt.days).ID; got != tt.want {
			t.Errorf("Resolve(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestResolveMonotonic(t *testing.T) {
	c := DefaultCatalog()
	prev := -1
	for d := -3; d <= 800; d++ {
		rank, ok := c.Rank(c.Resolve(d).ID)
		if !ok {
			t.Fatalf("Resolve(%d) returned unknown tier", d)
		}
		if rank < prev {
			t.Fatalf("tier rank decreased at day %d: %d < %d", d, rank, prev)
		}
		prev = rank
	}
}

func TestNewCatalogRejectsInvalidLadders(t *testing.T) {
	cases := map[string][]Tier{
		"empty":          nil,
		"nonzero start":  {{ID: "a", MinDays: 1}},
		"duplicate id":   {{ID: "a", MinDays: 0}, {ID: "a", MinDays: 3}},
		"not increasing": {{ID: "a", MinDays: 0}, {ID: "b", MinDays: 5}, {ID: "c", MinDays: 5}},
		"missing id":     {{ID: "a", MinDays: 0}, {MinDays: 4}},
	}
	for name, tiers := range cases {
		if _, err := NewCatalog(tiers); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadCatalogFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badges.toml")
	content := `
[[tier]]
id = "day-one"
min_days = 0
title = "Day One"

[[tier]]
id = "week"
min_days = 7
title = "One Week"
description = "Seven days clean"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if c.Initial().ID != "day-one" {
		t.Fatalf("expected initial tier day-one, got %s", c.Initial().ID)
	}
	if got := c.Resolve(9); got.ID != "week" || got.Description != "Seven days clean" {
		t.Fatalf("unexpected tier for day 9: %+v", got)
	}
	next, ok := c.Next("day-one")
	if !ok || next.ID != "week" {
		t.Fatalf("expected next tier week, got %+v", next)
	}
	if _, ok := c.Next("week"); ok {
		t.Fatalf("expected no tier after the last one")
	}
}
