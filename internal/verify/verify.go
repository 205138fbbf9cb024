// Package verify grounds aggregated graph nodes back in the source
// document using a BM25 index over the document's paragraphs. Nodes whose
// concept or quoted evidence cannot be found anywhere in the text are
// flagged unverified rather than removed; downstream consumers decide what
// to do with them.
package verify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

type paragraph struct {
	Text string `json:"text"`
}

// EvidenceVerifier checks extracted nodes against the document text.
type EvidenceVerifier struct {
	logger *log.Logger
}

func NewEvidenceVerifier(logger *log.Logger) *EvidenceVerifier {
	return &EvidenceVerifier{logger: logger}
}

// VerifyGraph indexes the document's paragraphs in memory and searches for
// each node's concept name and quoted source text. Nodes with no match are
// marked Unverified in place. Returns the unverified count.
func (v *EvidenceVerifier) VerifyGraph(ctx context.Context, doc core.Document, graph *core.KnowledgeGraph) (int, error) {
	index, err := buildIndex(doc)
	if err != nil {
		return 0, fmt.Errorf("building evidence index: %w", err)
	}
	defer func() { _ = index.Close() }()

	unverified := 0
	for id, node := range graph.Nodes {
		if err := ctx.Err(); err != nil {
			return unverified, err
		}
		if v.grounded(index, doc, node) {
			continue
		}
		node.Unverified = true
		graph.Nodes[id] = node
		unverified++
		v.logger.Printf("node %q has no supporting evidence in the document", id)
	}
	return unverified, nil
}

// grounded reports whether the node's concept name or its quoted source
// text can be located in the document.
func (v *EvidenceVerifier) grounded(index bleve.Index, doc core.Document, node core.KnowledgeNode) bool {
	// Exact substring of the quoted evidence is the strongest signal.
	if node.SourceText != "" &&
		strings.Contains(strings.ToLower(doc.Content), strings.ToLower(strings.TrimSpace(node.SourceText))) {
		return true
	}
	if strings.Contains(strings.ToLower(doc.Content), strings.ToLower(node.Label)) {
		return true
	}

	query := bleve.NewMatchQuery(node.Label)
	searchReq := bleve.NewSearchRequestOptions(query, 1, 0, false)
	res, err := index.Search(searchReq)
	if err != nil {
		v.logger.Printf("evidence search for %q failed: %v", node.Label, err)
		return false
	}
	return res.Total > 0
}

func buildIndex(doc core.Document) (bleve.Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	for i, text := range splitParagraphs(doc.Content) {
		if err := index.Index(fmt.Sprintf("p%d", i), paragraph{Text: text}); err != nil {
			_ = index.Close()
			return nil, err
		}
	}
	return index, nil
}

func splitParagraphs(content string) []string {
	var out []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}
