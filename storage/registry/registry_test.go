package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
)

func memoryBackend(name string, usage Usage, flagName string) Backend {
	var dir string
	return Backend{
		Name:  name,
		Usage: usage,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&dir, flagName, "", "test flag")
		},
		Open: func(context.Context) (storage.BlockStore, func() error, error) {
			return storage.NewMemoryStore(), nil, nil
		},
		OpenConfig: func(_ context.Context, cfg map[string]string) (storage.BlockStore, func() error, error) {
			return storage.NewMemoryStore(), nil, nil
		},
	}
}

func TestRegisterRejectsIncompleteBackends(t *testing.T) {
	if err := Register(Backend{}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := Register(Backend{Name: "x"}); err == nil {
		t.Fatalf("expected error for missing RegisterFlags")
	}
	b := memoryBackend("test-incomplete", 0, "test-incomplete-dir")
	if err := Register(b); err == nil || !strings.Contains(err.Error(), "Usage") {
		t.Fatalf("expected missing Usage error, got %v", err)
	}
}

func TestRegisterOpenAndUsageFiltering(t *testing.T) {
	MustRegister(memoryBackend("test-cli-only", UsageCLI, "test-cli-only-dir"))
	if err := Register(memoryBackend("test-cli-only", UsageCLI, "x")); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	found := false
	for _, n := range Names(UsageCLI) {
		if n == "test-cli-only" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected backend listed for CLI usage")
	}
	for _, n := range Names(UsageDaemon) {
		if n == "test-cli-only" {
			t.Fatalf("backend must not be listed for daemon usage")
		}
	}

	ctx := context.Background()
	if _, _, err := Open(ctx, "test-cli-only", UsageDaemon); err == nil {
		t.Fatalf("expected usage mismatch error")
	}
	store, _, err := Open(ctx, "test-cli-only", UsageCLI)
	if err != nil || store == nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := OpenWithConfig(ctx, "test-cli-only", UsageCLI, map[string]string{}); err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if _, _, err := Open(ctx, "does-not-exist", UsageCLI); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, UsageCLI)
	if fs.Lookup("test-cli-only-dir") == nil {
		t.Fatalf("expected backend flag registered")
	}
}
