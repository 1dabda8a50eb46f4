package collector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// DefaultArxivAPI is the arXiv export query endpoint.
const DefaultArxivAPI = "https://export.arxiv.org/api/query"

const (
	maxArxivAuthors    = 10
	maxArxivByline     = 3
	maxArxivCategories = 5
)

var (
	arxivURLID  = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf)/(\d{4}\.\d{4,5})`)
	arxivNoteID = regexp.MustCompile(`(?i)arxiv:(\d{4}\.\d{4,5})`)
)

// ArxivOptions configures the arXiv collector.
type ArxivOptions struct {
	// APIBase overrides the export query endpoint.
	APIBase string
}

// Arxiv reads paper metadata and abstracts from the arXiv Atom API.
type Arxiv struct {
	meta
	fetch fetcher.Fetcher
	api   string
}

// NewArxiv creates the arXiv collector.
func NewArxiv(f fetcher.Fetcher, opts ArxivOptions) *Arxiv {
	api := strings.TrimRight(opts.APIBase, "/")
	if api == "" {
		api = DefaultArxivAPI
	}
	return &Arxiv{
		meta:  meta{name: "arxiv", sourceType: model.SourceArxiv, tier: TierPublic},
		fetch: f,
		api:   api,
	}
}

func (a *Arxiv) CanHandle(rawURL string) bool { return ArxivID(rawURL) != "" }

func (a *Arxiv) HealthCheck(_ context.Context) Health {
	return Health{Status: StatusOK, Message: "public atom api", Available: true}
}

// ArxivID extracts a paper id from an abs or pdf URL, or from the
// "arXiv:2401.01234" notation. The version suffix is dropped.
func ArxivID(raw string) string {
	if m := arxivURLID.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := arxivNoteID.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}

// Parse queries the Atom API for one id and renders title, byline and
// abstract. The result URL is the canonical abs page.
func (a *Arxiv) Parse(ctx context.Context, rawURL string) (*model.ParseResult, error) {
	id := ArxivID(rawURL)
	if id == "" {
		return nil, eris.New("arxiv: could not extract paper id")
	}

	resp, err := a.fetch.Fetch(ctx, fetcher.Request{
		URL:    a.api + "?id_list=" + url.QueryEscape(id),
		Accept: "application/atom+xml",
	})
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: invalid atom response")
	}
	if len(feed.Items) == 0 {
		return nil, eris.Errorf("arxiv: no entry for %s", id)
	}
	entry := feed.Items[0]

	title := strings.Join(strings.Fields(entry.Title), " ")
	abstract := strings.TrimSpace(entry.Description)

	var authors []string
	for i, p := range entry.Authors {
		if i == maxArxivAuthors {
			authors = append(authors, fmt.Sprintf("et al. (%d total)", len(entry.Authors)))
			break
		}
		if p != nil && strings.TrimSpace(p.Name) != "" {
			authors = append(authors, strings.TrimSpace(p.Name))
		}
	}
	byline := strings.Join(authors[:min(len(authors), maxArxivByline)], ", ")
	if len(authors) > maxArxivByline {
		byline += " et al."
	}

	pdfURL := "https://arxiv.org/pdf/" + id
	for _, link := range entry.Links {
		if strings.Contains(link, "/pdf/") {
			pdfURL = link
			break
		}
	}

	if title == "" {
		title = "arXiv:" + id
	}
	content := urlkit.CleanText(fmt.Sprintf("**%s**\n\n%s\n\n%s", title, byline, abstract))
	res := a.success("https://arxiv.org/abs/"+id, title, content, byline)
	res.Excerpt = urlkit.Excerpt(abstract, excerptRunes)
	res.Tags = append([]string{"arxiv"}, entry.Categories[:min(len(entry.Categories), maxArxivCategories)]...)
	res.ConfidenceFlags = []string{"arxiv-api", "structured-metadata"}
	res.Extra["arxiv_id"] = model.String(id)
	res.Extra["authors"] = model.String(strings.Join(authors, "; "))
	res.Extra["categories"] = model.String(strings.Join(entry.Categories, ","))
	res.Extra["published"] = model.String(entry.Published)
	res.Extra["updated"] = model.String(entry.Updated)
	res.Extra["pdf_url"] = model.String(pdfURL)
	return res, nil
}
