package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "leadscan" {
			t.Errorf("expected use 'leadscan', got %q", cmd.Use)
		}
	})

	t.Run("has version", func(t *testing.T) {
		t.Parallel()
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		for name, short := range map[string]string{"verbose": "v", "log-json": "", "config": "c"} {
			flag := cmd.PersistentFlags().Lookup(name)
			if flag == nil {
				t.Errorf("expected %s flag", name)
				continue
			}
			if flag.Shorthand != short {
				t.Errorf("%s: expected shorthand %q, got %q", name, short, flag.Shorthand)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{"run": false, "history": false, "init": false, "version": false}
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

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("expected SilenceUsage and SilenceErrors")
		}
	})
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("text masks owner", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		setupLogger(&buf, false, false).Info("owner resolved", "owner", "LOPEZ MARIA G")
		if strings.Contains(buf.String(), "LOPEZ") {
			t.Errorf("owner leaked: %s", buf.String())
		}
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		setupLogger(&buf, false, true).Info("hello")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("expected JSON, got %s", buf.String())
		}
	})

	t.Run("debug only when verbose", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		setupLogger(&buf, false, false).Debug("hidden")
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %s", buf.String())
		}
	})
}
