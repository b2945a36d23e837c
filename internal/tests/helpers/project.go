// Package helpers provides fixtures shared by package tests.
package helpers

import (
	"os"
	"testing"

	"github.com/aki/agentpost/internal/core/config"
)

// CreateTestProject creates an initialized agentpost project in a temporary
// directory. mutate, if non-nil, adjusts the default configuration before it
// is saved.
func CreateTestProject(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	disabled := false
	cfg.Notify.Enabled = &disabled
	if mutate != nil {
		mutate(cfg)
	}

	if err := config.NewManager(dir).Save(cfg); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	return dir
}

// Chdir switches the working directory to dir for the rest of the test
func Chdir(t *testing.T, dir string) {
	t.Helper()

	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(orig)
	})
}
