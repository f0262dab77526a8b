package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkglink/linkage-cli/internal/bintest"
	"github.com/pkglink/linkage-cli/internal/linkage"
)

// captureStdout runs fn with os.Stdout redirected into a buffer.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fnErr := fn()
	w.Close()
	data, _ := io.ReadAll(r)
	return string(data), fnErr
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectError    bool
		expectHelpText bool
	}{
		{
			name:           "no arguments shows help",
			args:           []string{},
			expectError:    false,
			expectHelpText: true,
		},
		{
			name:        "version flag",
			args:        []string{"--version"},
			expectError: false,
		},
		{
			name:        "help flag",
			args:        []string{"--help"},
			expectError: false,
		},
		{
			name:        "unknown subcommand",
			args:        []string{"frobnicate"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd := newRootCmd()

			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			rootCmd.SetErr(&buf)
			rootCmd.SetArgs(tt.args)

			err := rootCmd.Execute()

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			output := buf.String()
			if tt.expectHelpText && !strings.Contains(output, "Usage:") {
				t.Errorf("expected help text but didn't find it in output: %s", output)
			}
		})
	}
}

func TestDepsCommandArguments(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		errorMsg string
	}{
		{
			name:     "no arguments",
			args:     []string{"deps"},
			errorMsg: "accepts 1 arg(s), received 0",
		},
		{
			name:     "too many arguments",
			args:     []string{"deps", "one", "two"},
			errorMsg: "accepts 1 arg(s), received 2",
		},
		{
			name:     "missing binary",
			args:     []string{"deps", "/definitely/not/there"},
			errorMsg: "binary file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd := newRootCmd()

			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			rootCmd.SetErr(&buf)
			rootCmd.SetArgs(tt.args)

			err := rootCmd.Execute()
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got: %v", tt.errorMsg, err)
			}
		})
	}
}

func TestDepsCommandResolvesTree(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "bin", "app")
	lib := filepath.Join(dir, "lib", "libfoo.so")
	writeTestBinary(t, app, bintest.BuildELF64(bintest.ELFOpts{
		Needed:  []string{"libfoo.so"},
		RunPath: []string{"$ORIGIN/../lib"},
	}))
	writeTestBinary(t, lib, bintest.BuildELF64(bintest.ELFOpts{SOName: "libfoo.so"}))

	output, err := captureStdout(t, func() error {
		rootCmd := newRootCmd()
		rootCmd.SetOut(io.Discard)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"deps", app})
		return rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("deps failed: %v", err)
	}

	if !strings.Contains(output, "libfoo.so => "+lib) {
		t.Errorf("expected resolved entry in output, got: %s", output)
	}
}

func TestDepsCommandJSONOutput(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app")
	writeTestBinary(t, app, bintest.BuildELF64(bintest.ELFOpts{
		Needed: []string{filepath.Join(dir, "libdirect.so")},
	}))
	writeTestBinary(t, filepath.Join(dir, "libdirect.so"),
		bintest.BuildELF64(bintest.ELFOpts{SOName: "libdirect.so"}))

	output, err := captureStdout(t, func() error {
		rootCmd := newRootCmd()
		rootCmd.SetOut(io.Discard)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"deps", "--format", "json", app})
		return rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("deps failed: %v", err)
	}

	var report struct {
		Binary   string                    `json:"binary"`
		Linkages []linkage.ResolvedLinkage `json:"linkages"`
	}
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, output)
	}
	if report.Binary != app {
		t.Errorf("expected binary=%s, got: %s", app, report.Binary)
	}
	if len(report.Linkages) != 1 || report.Linkages[0].Path == "" {
		t.Errorf("expected one resolved linkage, got: %+v", report.Linkages)
	}
}

func TestDepsCommandNamesOnly(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app")
	writeTestBinary(t, app, bintest.BuildELF64(bintest.ELFOpts{
		Needed: []string{"libz.so.1", "libc.so.6"},
	}))

	output, err := captureStdout(t, func() error {
		rootCmd := newRootCmd()
		rootCmd.SetOut(io.Discard)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"deps", "--names-only", "--no-recurse", app})
		return rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("deps failed: %v", err)
	}

	for _, name := range []string{"libc.so.6", "libz.so.1"} {
		if !strings.Contains(output, name) {
			t.Errorf("expected %s in output, got: %s", name, output)
		}
	}
}

func TestClassifyCommand(t *testing.T) {
	dir := t.TempDir()
	elfFile := filepath.Join(dir, "program")
	writeTestBinary(t, elfFile, bintest.BuildELF64(bintest.ELFOpts{}))
	textFile := filepath.Join(dir, "notes.txt")
	writeTestBinary(t, textFile, []byte("not a binary"))

	output, err := captureStdout(t, func() error {
		rootCmd := newRootCmd()
		rootCmd.SetOut(io.Discard)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"classify", elfFile, textFile})
		return rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if !strings.Contains(output, elfFile+": ELF64") {
		t.Errorf("expected ELF64 classification, got: %s", output)
	}
	if !strings.Contains(output, textFile+": Unknown") {
		t.Errorf("expected Unknown classification, got: %s", output)
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := captureStdout(t, func() error {
		rootCmd := newRootCmd()
		rootCmd.SetOut(io.Discard)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"version"})
		return rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(output, "pkglink version") {
		t.Errorf("expected version banner, got: %s", output)
	}
}

func TestSplitColonList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"/a", []string{"/a"}},
		{"/a:/b", []string{"/a", "/b"}},
		{":/a::", []string{"/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := splitColonList(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitColonList(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestOutputLinksUnsupportedFormat(t *testing.T) {
	err := outputLinks("/bin/true", nil, "yaml")
	if err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Errorf("expected unsupported format error, got: %v", err)
	}
}

func writeTestBinary(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}
