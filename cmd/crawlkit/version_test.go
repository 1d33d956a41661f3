package main

import (
	"bytes"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestBuildInfoWithEmbedded(t *testing.T) {
	t.Parallel()

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
	}
	dirty := append([]debug.BuildSetting{{Key: "vcs.modified", Value: "true"}}, settings...)

	tests := []struct {
		name     string
		in       buildInfo
		main     string
		settings []debug.BuildSetting
		want     buildInfo
	}{
		{
			name:     "embedded data fills gaps",
			main:     "v1.2.3",
			settings: settings,
			want:     buildInfo{Version: "v1.2.3", Commit: "0123456", Date: "2026-03-04T05:06:07Z"},
		},
		{
			name:     "modified tree",
			settings: dirty,
			want:     buildInfo{Commit: "0123456-dirty", Date: "2026-03-04T05:06:07Z"},
		},
		{
			name:     "ldflags win",
			in:       buildInfo{Version: "v9.9.9", Commit: "feedbee", Date: "yesterday"},
			main:     "v1.2.3",
			settings: dirty,
			want:     buildInfo{Version: "v9.9.9", Commit: "feedbee", Date: "yesterday"},
		},
		{
			name:     "short revision kept whole",
			settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}},
			want:     buildInfo{Commit: "abc"},
		},
		{
			name: "no build data",
			want: buildInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.in.withEmbedded(tt.main, tt.settings); got != tt.want {
				t.Errorf("withEmbedded() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReadBuildInfo(t *testing.T) {
	t.Parallel()

	info := readBuildInfo()
	if info.Version == "" || info.Commit == "" || info.Date == "" {
		t.Errorf("readBuildInfo() left fields empty: %+v", info)
	}
	if info.Go != runtime.Version() {
		t.Errorf("Go = %q, want %q", info.Go, runtime.Version())
	}
	if getVersion() != info.Version {
		t.Errorf("getVersion() = %q, want %q", getVersion(), info.Version)
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		want  []string
		lines int
	}{
		{
			name:  "full",
			want:  []string{"crawlkit ", "commit", "built", "platform  " + runtime.GOOS, "go        go"},
			lines: 5,
		},
		{
			name:  "short",
			args:  []string{"--short"},
			want:  []string{getVersion()},
			lines: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			cmd := NewVersionCmd()
			cmd.SetOut(&buf)
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output %q should contain %q", out, want)
				}
			}
			if got := strings.Count(out, "\n"); got != tt.lines {
				t.Errorf("output has %d lines, want %d", got, tt.lines)
			}
		})
	}

	t.Run("rejects arguments", func(t *testing.T) {
		t.Parallel()

		cmd := NewVersionCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"extra"})
		if err := cmd.Execute(); err == nil {
			t.Error("expected an error for unexpected arguments")
		}
	})
}
