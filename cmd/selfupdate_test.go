package cmd

import (
	"strings"
	"testing"
)

func TestSelfUpdateRefusesDevelopmentBuilds(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	for _, version := range []string{"", "dev"} {
		rootCmd.Version = version

		err := runSelfUpdate(nil, nil)
		if err == nil {
			t.Fatalf("runSelfUpdate() with version %q should fail", version)
		}
		if !strings.Contains(err.Error(), "cannot self-update a development version") {
			t.Errorf("runSelfUpdate() with version %q: unexpected error %q", version, err)
		}
	}
}

func TestSelfUpdateCommand(t *testing.T) {
	cmd := newSelfUpdateCmd()

	if cmd.Use != "self-update" {
		t.Errorf("Use = %q, want self-update", cmd.Use)
	}
	if !strings.Contains(cmd.Short, "mcpconnect") {
		t.Errorf("Short = %q, should name the binary", cmd.Short)
	}
	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("self-update should reject arguments")
	}
	if githubRepoSlug != "mcpconnect/mcpconnect" {
		t.Errorf("githubRepoSlug = %q", githubRepoSlug)
	}
}
