package collector

import (
	"bytes"
	"context"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

const (
	minGenericContent = 50
	htmlAccept        = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

var allowedPageTypes = []string{"text/html", "application/xhtml+xml", "text/plain", "application/xml"}

// boilerplate is removed before the main content is located.
const boilerplate = "script, style, noscript, header, footer, nav, aside, form, iframe"

// Generic extracts readable markdown from any HTML page. It is the last
// resort in the chain and handles every URL.
type Generic struct {
	meta
	fetch     fetcher.Fetcher
	policy    *bluemonday.Policy
	converter *htmltomarkdown.Converter

	// AllowPrivateHosts disables the external-URL guard.
	AllowPrivateHosts bool
}

// NewGeneric creates the generic HTML collector.
func NewGeneric(f fetcher.Fetcher) *Generic {
	return &Generic{
		meta:   meta{name: "generic", sourceType: model.SourceGeneric, tier: TierLocal},
		fetch:  f,
		policy: bluemonday.UGCPolicy(),
		converter: htmltomarkdown.NewConverter(
			htmltomarkdown.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (g *Generic) CanHandle(_ string) bool { return true }

func (g *Generic) HealthCheck(_ context.Context) Health {
	return Health{Status: StatusOK, Message: "built-in html extraction", Available: true}
}

// Parse fetches the page and converts its main content to markdown.
func (g *Generic) Parse(ctx context.Context, url string) (*model.ParseResult, error) {
	if !g.AllowPrivateHosts {
		if err := urlkit.ValidateExternalURL(url); err != nil {
			return nil, err
		}
	}

	resp, err := g.fetch.Fetch(ctx, fetcher.Request{URL: url, Accept: htmlAccept})
	if err != nil {
		return nil, err
	}
	if !g.AllowPrivateHosts && resp.URL != "" && resp.URL != url {
		if err := urlkit.ValidateExternalURL(resp.URL); err != nil {
			return nil, eris.Wrap(err, "generic: blocked redirect target")
		}
	}
	if ct := strings.ToLower(resp.ContentType); ct != "" && !allowedType(ct) {
		return nil, eris.Errorf("generic: unsupported content type %s", ct)
	}
	if blocked, kind := DetectBlock(resp.Header, resp.Body); blocked {
		return nil, eris.Errorf("generic: blocked (%s)", kind)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "generic: parse html")
	}
	title, author, description := pageMetadata(doc)

	content, err := g.mainContent(doc, url)
	if err != nil {
		return nil, err
	}
	if len(content) < minGenericContent {
		return nil, eris.New("generic: could not extract meaningful text")
	}

	res := g.success(url, title, content, author)
	res.Tags = []string{"generic", "markdown"}
	res.ConfidenceFlags = []string{"html-markdown"}
	res.Extra["collector"] = model.String("generic")
	if description != "" {
		res.Extra["description"] = model.String(description)
	}
	if site := urlkit.Domain(url); site != "unknown" {
		res.Extra["site"] = model.String(site)
	}
	return res, nil
}

func allowedType(ct string) bool {
	for _, t := range allowedPageTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}

// pageMetadata prefers OpenGraph values over the document head.
func pageMetadata(doc *goquery.Document) (title, author, description string) {
	title = strings.TrimSpace(doc.Find("title").First().Text())
	if og := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", "")); og != "" {
		title = og
	}
	author = strings.TrimSpace(doc.Find(`meta[name="author"]`).AttrOr("content", ""))
	if author == "" {
		author = strings.TrimSpace(doc.Find(`meta[property="article:author"]`).AttrOr("content", ""))
	}
	description = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	if description == "" {
		description = strings.TrimSpace(doc.Find(`meta[property="og:description"]`).AttrOr("content", ""))
	}
	return title, author, description
}

// mainContent strips boilerplate, picks the article root, sanitizes it and
// converts it to markdown.
func (g *Generic) mainContent(doc *goquery.Document, pageURL string) (string, error) {
	doc.Find(boilerplate).Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main, [role=main]").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		return "", nil
	}

	raw, err := root.Html()
	if err != nil {
		return "", eris.Wrap(err, "generic: render html")
	}
	md, err := g.converter.ConvertString(g.policy.Sanitize(raw), htmltomarkdown.WithDomain(pageURL))
	if err != nil {
		return "", eris.Wrap(err, "generic: convert markdown")
	}
	return urlkit.CleanText(md), nil
}
