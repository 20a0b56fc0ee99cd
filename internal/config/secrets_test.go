package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestResolveSecret(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		file    *string
		want    string
		wantErr bool
	}{
		{name: "env only", env: "env-value", want: "env-value"},
		{name: "file only", file: strPtr("file-value\n"), want: "file-value"},
		{name: "file wins over env", env: "env-value", file: strPtr("file-value"), want: "file-value"},
		{name: "neither set", want: ""},
		{name: "trims whitespace", file: strPtr("  secret-value  \n\n"), want: "secret-value"},
		{name: "empty file", env: "env-value", file: strPtr(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const envName = "HOLOQUEST_TEST_SECRET"
			t.Setenv(envName, tt.env)
			t.Setenv(envName+"_FILE", "")
			if tt.file != nil {
				t.Setenv(envName+"_FILE", writeSecret(t, *tt.file))
			}

			got, err := ResolveSecret(envName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSecret_FileNotFound(t *testing.T) {
	t.Setenv("HOLOQUEST_TEST_MISSING_FILE", "/nonexistent/path/to/secret")

	if _, err := ResolveSecret("HOLOQUEST_TEST_MISSING"); err == nil {
		t.Error("expected error when file does not exist")
	}
}

func strPtr(s string) *string { return &s }
