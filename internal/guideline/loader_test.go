package guideline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseStringContents(t *testing.T) {
	doc, err := Parse([]byte(`{"title": "Diabetes Guideline", "contents": "Metformin is first line."}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "Diabetes Guideline" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if doc.Content != "Metformin is first line." {
		t.Fatalf("unexpected content %q", doc.Content)
	}
}

func TestParseSectionMapFlattens(t *testing.T) {
	doc, err := Parse([]byte(`{"title": "Guideline", "contents": {"Treatment": "Use metformin.", "Diagnosis": "Check HbA1c."}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "## Diagnosis\n\nCheck HbA1c.\n\n## Treatment\n\nUse metformin.\n\n"
	if doc.Content != want {
		t.Fatalf("flattened content mismatch:\n%q\nwant\n%q", doc.Content, want)
	}
}

func TestParseRejectsMissingTitleAndContent(t *testing.T) {
	if _, err := Parse([]byte(`{"contents": "text"}`)); err == nil {
		t.Fatalf("expected error for missing title")
	}
	if _, err := Parse([]byte(`{"title": "x"}`)); err == nil {
		t.Fatalf("expected error for missing contents")
	}
	if _, err := Parse([]byte(`{"title": "x", "contents": "   "}`)); err == nil {
		t.Fatalf("expected error for blank contents")
	}
}

func TestLoadFillsIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nice-ng28.json")
	if err := os.WriteFile(path, []byte(`{"title": "NG28", "contents": "Type 2 diabetes in adults."}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.ID != "nice-ng28" {
		t.Fatalf("expected id from filename, got %q", doc.ID)
	}
	if !strings.HasSuffix(doc.Source, "nice-ng28.json") {
		t.Fatalf("expected source path, got %q", doc.Source)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(`{"title": "T", "contents": "body"}`), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}
