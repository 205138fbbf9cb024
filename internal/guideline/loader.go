// Package guideline loads clinical guideline documents from disk and
// flattens them into the single-content form the pipeline consumes.
package guideline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// rawDocument is the on-disk shape: contents is either one string or a
// map of section name to section text.
type rawDocument struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Contents json.RawMessage `json:"contents"`
}

// Load reads one guideline JSON file and returns the flattened document.
func Load(path string) (core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Document{}, fmt.Errorf("reading guideline %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return core.Document{}, fmt.Errorf("parsing guideline %s: %w", path, err)
	}
	if doc.ID == "" {
		doc.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	doc.Source = path
	return doc, nil
}

// Parse decodes a guideline document from JSON. Map-valued contents are
// flattened to "## <section>\n\n<text>\n\n" concatenation, with sections
// in sorted order so the same input always yields the same document.
func Parse(data []byte) (core.Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.Document{}, err
	}
	if raw.Title == "" {
		return core.Document{}, fmt.Errorf("guideline document has no title")
	}

	content, err := flattenContents(raw.Contents)
	if err != nil {
		return core.Document{}, err
	}
	if strings.TrimSpace(content) == "" {
		return core.Document{}, fmt.Errorf("guideline document %q has no content", raw.Title)
	}

	return core.Document{ID: raw.ID, Title: raw.Title, Content: content}, nil
}

// LoadDir loads every .json guideline under dir.
func LoadDir(dir string) ([]core.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading guideline directory %s: %w", dir, err)
	}

	var docs []core.Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no guideline documents found in %s", dir)
	}
	return docs, nil
}

func flattenContents(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("guideline document has no contents")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}

	var sections map[string]string
	if err := json.Unmarshal(raw, &sections); err != nil {
		return "", fmt.Errorf("contents must be a string or a section map: %w", err)
	}

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString("## ")
		b.WriteString(name)
		b.WriteString("\n\n")
		b.WriteString(sections[name])
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
