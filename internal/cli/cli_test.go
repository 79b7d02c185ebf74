package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/app"
	"github.com/recoverly/recoverly/internal/config"
	"github.com/recoverly/recoverly/internal/feed"
	"github.com/recoverly/recoverly/internal/logging"
)

func setup(t *testing.T) (Opener, string) {
	t.Helper()
	store := account.NewMemoryStore()
	acc := account.New("cli-1", "seedling", time.Now().Add(-4*24*time.Hour))
	store.Seed(acc)
	a := app.NewWithStore(config.Config{StoreDriver: config.StoreMemory}, logging.Discard(), store, feed.NewMemory())
	return func(context.Context) (*app.App, error) { return a, nil }, acc.ID
}

func run(t *testing.T, open Opener, args ...string) string {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("recoveryctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestAccountShowDoesNotReconcile(t *testing.T) {
	open, id := setup(t)
	var v struct {
		Account account.Account `json:"account"`
	}
	if err := json.Unmarshal([]byte(run(t, open, "account", "show", id)), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Account.BadgeTier != "seedling" {
		t.Fatalf("show must not write, got tier %s", v.Account.BadgeTier)
	}
}

func TestAccountReconcile(t *testing.T) {
	open, id := setup(t)
	var v struct {
		Account account.Account `json:"account"`
	}
	if err := json.Unmarshal([]byte(run(t, open, "account", "reconcile", id)), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Account.BadgeTier != "sprout" {
		t.Fatalf("expected sprout after 4 days, got %s", v.Account.BadgeTier)
	}
}

func TestContractStatus(t *testing.T) {
	open, id := setup(t)
	out := run(t, open, "contract", "status", id)
	if !strings.Contains(out, `"state": "none"`) {
		t.Fatalf("unexpected status output: %s", out)
	}
}

func TestBadgesListFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[[tier]]
id = "day-one"
min_days = 0
title = "Day One"

[[tier]]
id = "week"
min_days = 7
title = "First Week"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	out := run(t, nil, "badges", "list", "--file", path)
	if !strings.Contains(out, "day-one") || !strings.Contains(out, "First Week") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestUnknownAccountFails(t *testing.T) {
	open, _ := setup(t)
	cmd := NewRootCommand(open)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"account", "show", "missing"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected an error for a missing account")
	}
}
