package main

import (
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"mercator-hq/forwarder/pkg/telemetry/health"
)

func TestVersionInfo(t *testing.T) {
	origVersion, origGitCommit, origBuildDate := Version, GitCommit, BuildDate
	t.Cleanup(func() {
		Version, GitCommit, BuildDate = origVersion, origGitCommit, origBuildDate
	})

	Version = "0.1.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-01-02"

	info := versionInfo()
	if info.Version != "0.1.0-test" {
		t.Errorf("Version = %q, want %q", info.Version, "0.1.0-test")
	}
	if info.Commit != "abc123" {
		t.Errorf("Commit = %q, want %q", info.Commit, "abc123")
	}
	if info.BuildTime != "2026-01-02" {
		t.Errorf("BuildTime = %q, want %q", info.BuildTime, "2026-01-02")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() {
		versionFlags.output = "text"
		versionCmd.SetOut(nil)
	})

	tests := []struct {
		name    string
		output  string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name:   "text",
			output: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "Forwarder "+Version) {
					t.Errorf("output missing version line:\n%s", out)
				}
				if !strings.Contains(out, "OS/Arch: "+runtime.GOOS+"/"+runtime.GOARCH) {
					t.Errorf("output missing platform line:\n%s", out)
				}
			},
		},
		{
			name:   "json",
			output: "json",
			check: func(t *testing.T, out string) {
				var info health.VersionInfo
				if err := json.Unmarshal([]byte(out), &info); err != nil {
					t.Fatalf("output is not JSON: %v\n%s", err, out)
				}
				if info.Version != Version {
					t.Errorf("Version = %q, want %q", info.Version, Version)
				}
			},
		},
		{
			name:    "unknown format",
			output:  "yaml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			versionCmd.SetOut(&buf)
			versionFlags.output = tt.output

			err := printVersion(versionCmd, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("printVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, buf.String())
			}
		})
	}
}
