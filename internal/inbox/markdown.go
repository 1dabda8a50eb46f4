package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

const markdownSnippetRunes = 1800

// RecordMarkdown renders one item as a markdown document with front matter.
func RecordMarkdown(it *model.Item) string {
	lines := []string{
		"---",
		"id: " + it.ID,
		"source_type: " + string(it.SourceType),
		"source_name: " + it.SourceName,
		"title: " + it.Title,
		"url: " + it.URL,
		"fetched_at: " + it.FetchedAt,
		"parser: " + it.Parser,
		"language: " + it.Language,
		fmt.Sprintf("confidence: %g", it.Confidence),
		"domain: " + urlkit.DomainTag(it.URL),
		"content_hash: " + urlkit.ContentHash(it.Content),
		"---",
		"",
		"# " + it.Title,
		"",
		"- Source: " + it.SourceName,
		"- URL: " + it.URL,
		fmt.Sprintf("- Confidence: %.3f", it.Confidence),
		"- Parser reliability hints: " + strings.Join(it.ConfidenceFactors, ", "),
		"",
		it.Content,
	}
	return strings.Join(lines, "\n")
}

// AppendMarkdown appends a short entry for the item to the markdown file at
// path, creating it when needed.
func AppendMarkdown(path string, it *model.Item) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "inbox: create markdown dir")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "inbox: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	fetched := it.FetchedAt
	if len(fetched) > 16 {
		fetched = fetched[:16]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n## [%s](%s)\n", it.Title, it.URL)
	fmt.Fprintf(&b, "- source: %s / %s\n", it.SourceName, it.SourceType)
	fmt.Fprintf(&b, "- fetched: %s\n", fetched)
	fmt.Fprintf(&b, "- confidence: %.3f\n", it.Confidence)
	fmt.Fprintf(&b, "- tags: %s\n", strings.Join(it.Tags, ", "))
	fmt.Fprintf(&b, "- factors: %s\n", strings.Join(it.ConfidenceFactors, ", "))
	fmt.Fprintf(&b, "\n%s\n", urlkit.Truncate(it.Content, markdownSnippetRunes))
	b.WriteString("\n---\n")

	_, err = f.WriteString(b.String())
	return eris.Wrap(err, "inbox: append markdown")
}
