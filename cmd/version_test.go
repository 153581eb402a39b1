package cmd

import (
	"bytes"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestCurrentBuildInfo(t *testing.T) {
	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v1.4.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc123"},
				{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}

	t.Run("falls back to vcs stamp", func(t *testing.T) {
		info := currentBuildInfo(stamped)
		if info.Version != "v1.4.0" || info.Commit != "abc123" || info.BuildDate != "2026-03-01T10:00:00Z" {
			t.Errorf("unexpected info %+v", info)
		}
		if !info.Modified || info.GoVersion != runtime.Version() {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("ldflags win", func(t *testing.T) {
		oldVersion, oldCommit := Version, CommitSHA
		Version, CommitSHA = "v2.0.0", "deadbeef"
		defer func() { Version, CommitSHA = oldVersion, oldCommit }()

		info := currentBuildInfo(stamped)
		if info.Version != "v2.0.0" || info.Commit != "deadbeef" {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("no build info", func(t *testing.T) {
		info := currentBuildInfo(func() (*debug.BuildInfo, bool) { return nil, false })
		if info.Commit != CommitSHA || info.BuildDate != BuildDate {
			t.Errorf("unexpected info %+v", info)
		}
	})
}

func TestPrintBuildInfo(t *testing.T) {
	var buf bytes.Buffer
	printBuildInfo(&buf, buildInfo{Version: "v1.0.0", Commit: "abc", BuildDate: "today", GoVersion: "go1.26", Modified: true})

	out := buf.String()
	for _, want := range []string{"attendance v1.0.0", "Commit: abc (modified)", "Go:     go1.26"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
