package docextract

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("could not write temp file: %v", err)
	}
	return path
}

func TestValidateRejectsOversizedUpload(t *testing.T) {
	path := writeTemp(t, "doc.txt", make([]byte, 2*1024*1024))
	cfg := Config{MaxSizeMB: 1, AllowedExts: []string{"txt"}}
	if err := Validate(path, cfg); err == nil {
		t.Fatalf("expected Validate to reject a 2MB file against a 1MB ceiling")
	}
}

func TestValidateRejectsDisallowedExtension(t *testing.T) {
	path := writeTemp(t, "doc.exe", []byte("not a document"))
	cfg := Config{MaxSizeMB: 50, AllowedExts: []string{"txt", "md", "pdf"}}
	if err := Validate(path, cfg); err == nil {
		t.Fatalf("expected Validate to reject a .exe upload")
	}
}

func TestValidateAcceptsWellFormedUpload(t *testing.T) {
	path := writeTemp(t, "doc.md", []byte("# Title\n\nBody text."))
	cfg := Config{MaxSizeMB: 50, AllowedExts: []string{"txt", "md", "pdf"}}
	if err := Validate(path, cfg); err != nil {
		t.Fatalf("expected a well-formed upload to validate, got: %v", err)
	}
}

func TestExtractMD(t *testing.T) {
	path := writeTemp(t, "notes.md", []byte("# Heading\n\nSome narration text about a topic."))
	result, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.DetectedType != "md" {
		t.Fatalf("DetectedType = %q; want %q", result.DetectedType, "md")
	}
	if result.Text == "" {
		t.Fatalf("expected non-empty extracted text")
	}
}

func TestExtractTXTRejectsEmptyDocument(t *testing.T) {
	path := writeTemp(t, "empty.txt", []byte("   \n\n  "))
	if _, err := Extract(path); err == nil {
		t.Fatalf("expected Extract to reject a document with no extractable text")
	}
}
