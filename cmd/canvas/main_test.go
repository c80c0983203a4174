package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("canvas %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestAdminCommands(t *testing.T) {
	t.Setenv("CANVAS_DB", filepath.Join(t.TempDir(), "canvas.db"))
	t.Setenv("SESSION_SECRET", "")
	configPath = ""

	if out := execute(t, "owner", "add", "Ann@Example.com", "--name", "Ann", "--password", "correct-horse"); !strings.Contains(out, "ann@example.com") {
		t.Fatalf("owner add: %q", out)
	}
	if out := execute(t, "owner", "list"); !strings.Contains(out, "ann@example.com") || !strings.Contains(out, "local") {
		t.Fatalf("owner list: %q", out)
	}
	if out := execute(t, "sessions"); !strings.HasPrefix(out, "ID") {
		t.Fatalf("sessions: %q", out)
	}
	if out := execute(t, "maintenance", "on", "-m", "back soon"); !strings.Contains(out, "maintenance on") {
		t.Fatalf("maintenance: %q", out)
	}
	execute(t, "maintenance", "off")
	if out := execute(t, "prune"); !strings.Contains(out, "pruned 0 mutations") {
		t.Fatalf("prune: %q", out)
	}
}

func TestServeRequiresSecret(t *testing.T) {
	t.Setenv("CANVAS_DB", filepath.Join(t.TempDir(), "canvas.db"))
	t.Setenv("SESSION_SECRET", "")
	configPath = ""

	rootCmd.SetArgs([]string{"serve"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("serve started without a secret")
	}
}

func TestStamp(t *testing.T) {
	if stamp(0) != "-" {
		t.Errorf("stamp(0) = %q", stamp(0))
	}
	if s := stamp(1_700_000_000_000); len(s) != len("2006-01-02 15:04:05") {
		t.Errorf("stamp = %q", s)
	}
}
