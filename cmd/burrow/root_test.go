package main

import (
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("should have correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "burrow" {
			t.Errorf("expected Use to be 'burrow', got %q", cmd.Use)
		}
	})

	t.Run("should silence usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("root command should silence usage and errors")
		}
	})

	t.Run("should have persistent flags", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name      string
			shorthand string
		}{
			{flagConfig, "c"},
			{flagVerbose, "v"},
			{flagTimeout, "t"},
			{flagProxy, "x"},
			{flagMaxManifestSize, ""},
			{flagParentWalk, ""},
			{flagPersistCache, ""},
			{flagAllowHost, ""},
			{flagTor, ""},
		}
		for _, tt := range tests {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected --%s flag to exist", tt.name)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("--%s: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
			}
		}
	})

	t.Run("should render sizes for humans", func(t *testing.T) {
		t.Parallel()
		flag := cmd.PersistentFlags().Lookup(flagMaxManifestSize)
		if flag == nil || flag.DefValue != "10MiB" {
			t.Errorf("unexpected default for --%s: %v", flagMaxManifestSize, flag)
		}
	})

	t.Run("should have subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{
			"discover": false, "list": false, "fetch": false, "traverse": false,
			"validate": false, "history": false, "cache": false, "init": false, "version": false,
		}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected %s subcommand", name)
			}
		}
	})
}

func TestNewTraverseCmd(t *testing.T) {
	t.Parallel()

	cmd := NewTraverseCmd()

	tests := []struct {
		name      string
		shorthand string
	}{
		{flagMaxDepth, "d"},
		{flagMaxEntries, "n"},
		{flagJSON, "j"},
		{flagMarkdown, "m"},
		{flagOutput, "o"},
		{flagQuiet, "q"},
		{flagContent, ""},
		{flagIgnore, ""},
		{flagNoHistory, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected --%s flag to exist", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
		})
	}
}
