package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// DefaultMinParagraphLength is the length a paragraph must exceed to be kept.
const DefaultMinParagraphLength = 20

// Config tunes extraction.
type Config struct {
	// MinParagraphLength is exclusive: paragraphs must be longer than this.
	MinParagraphLength int
	// Readability adds an article summary to each document.
	Readability bool
}

// Extractor implements harvest.Extractor with goquery.
type Extractor struct {
	cfg    Config
	clock  harvest.Clock
	hasher harvest.Hasher
	logger *zap.Logger
}

// New builds an Extractor. A nil hasher leaves content_hash empty.
func New(cfg Config, clock harvest.Clock, hasher harvest.Hasher, logger *zap.Logger) *Extractor {
	if cfg.MinParagraphLength < 0 {
		cfg.MinParagraphLength = DefaultMinParagraphLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, clock: clock, hasher: hasher, logger: logger.Named("extract")}
}

// Extract builds a Document from markup. It never fails; sourceURL is
// recorded as-is.
func (e *Extractor) Extract(markup harvest.Markup, sourceURL string) harvest.Document {
	doc := e.parse(markup)

	meta := harvest.Metadata{
		URL:         sourceURL,
		Title:       title(doc).or(harvest.NoTitle),
		Description: metaContent(doc, "description").or(""),
		Keywords:    metaContent(doc, "keywords").or(""),
	}
	if e.clock != nil {
		meta.FetchedAt = e.clock.Now()
	}
	if e.hasher != nil {
		meta.ContentHash = e.hasher.Hash(markup.Body)
	}

	content := harvest.Content{
		Headings:   headings(doc).or([]harvest.Heading{}),
		Paragraphs: paragraphs(doc, e.cfg.MinParagraphLength).or([]string{}),
		Links:      links(doc).or([]harvest.Link{}),
		Tables:     tables(doc).or([]harvest.Table{}),
		Flow:       flow(doc, e.cfg.MinParagraphLength).or(nil),
	}
	if e.cfg.Readability {
		content.Article = e.article(doc, sourceURL).or(nil)
	}

	return harvest.Document{Metadata: meta, Content: content}
}

// parse decodes and parses markup, falling back to the raw bytes and then
// to an empty document.
func (e *Extractor) parse(markup harvest.Markup) *goquery.Document {
	if decoded := toUTF8(markup.Body, markup.ContentType); decoded.found {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded.value)); err == nil {
			return doc
		}
	}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup.Body)); err == nil {
		return doc
	}
	e.logger.Warn("markup could not be parsed, using empty document")
	return goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
}

func title(doc *goquery.Document) lookup[string] {
	t := normalize(doc.Find("title").First().Text())
	if t == "" {
		return notFound[string]()
	}
	return found(t)
}

func metaContent(doc *goquery.Document, name string) lookup[string] {
	var out lookup[string]
	doc.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(m.AttrOr("name", "")), name) {
			return true
		}
		content, ok := m.Attr("content")
		if !ok {
			out = found("")
			return false
		}
		out = found(normalize(content))
		return false
	})
	return out
}

func headings(doc *goquery.Document) lookup[[]harvest.Heading] {
	var out []harvest.Heading
	doc.Find("h1, h2, h3").Each(func(_ int, h *goquery.Selection) {
		text := normalize(h.Text())
		if text == "" {
			return
		}
		tag := goquery.NodeName(h)
		out = append(out, harvest.Heading{Level: int(tag[1] - '0'), Tag: tag, Text: text})
	})
	if len(out) == 0 {
		return notFound[[]harvest.Heading]()
	}
	return found(out)
}

func paragraphs(doc *goquery.Document, minLen int) lookup[[]string] {
	var out []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := normalize(p.Text()); textLen(text) > minLen {
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		return notFound[[]string]()
	}
	return found(out)
}

func links(doc *goquery.Document) lookup[[]harvest.Link] {
	var out []harvest.Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		text := normalize(a.Text())
		if text == "" || !strings.HasPrefix(href, "http") {
			return
		}
		out = append(out, harvest.Link{Text: text, URL: href})
	})
	if len(out) == 0 {
		return notFound[[]harvest.Link]()
	}
	return found(out)
}

func tables(doc *goquery.Document) lookup[[]harvest.Table] {
	var out []harvest.Table
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		converted := convertTable(t)
		if !converted.found {
			return
		}
		table := converted.value
		table.Name = fmt.Sprintf("table_%d", len(out))
		out = append(out, table)
	})
	if len(out) == 0 {
		return notFound[[]harvest.Table]()
	}
	return found(out)
}

// flow interleaves the same headings and paragraphs in document order.
func flow(doc *goquery.Document, minLen int) lookup[[]harvest.Block] {
	var out []harvest.Block
	doc.Find("h1, h2, h3, p").Each(func(_ int, s *goquery.Selection) {
		text := normalize(s.Text())
		if goquery.NodeName(s) == "p" {
			if textLen(text) > minLen {
				out = append(out, harvest.Block{Type: harvest.BlockParagraph, Text: text})
			}
			return
		}
		if text != "" {
			out = append(out, harvest.Block{Type: harvest.BlockHeading, Text: text})
		}
	})
	if len(out) == 0 {
		return notFound[[]harvest.Block]()
	}
	return found(out)
}

// article runs readability over the parsed page. The library is not
// hardened against every input, so a panic counts as nothing found.
func (e *Extractor) article(doc *goquery.Document, sourceURL string) (result lookup[*harvest.Article]) {
	pageURL, err := url.Parse(sourceURL)
	if err != nil || pageURL.Host == "" {
		return notFound[*harvest.Article]()
	}
	rendered, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return notFound[*harvest.Article]()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("readability panicked", zap.String("url", sourceURL), zap.Any("panic", r))
			result = notFound[*harvest.Article]()
		}
	}()

	parsed, err := readability.FromReader(strings.NewReader(rendered), pageURL)
	if err != nil {
		e.logger.Debug("no readable article", zap.String("url", sourceURL), zap.Error(err))
		return notFound[*harvest.Article]()
	}
	text := ""
	if body, err := goquery.NewDocumentFromReader(strings.NewReader(parsed.Content)); err == nil {
		text = normalize(body.Text())
	}
	a := &harvest.Article{
		Title:   normalize(parsed.Title),
		Excerpt: normalize(parsed.Excerpt),
		Text:    text,
	}
	if a.Title == "" && a.Excerpt == "" && a.Text == "" {
		return notFound[*harvest.Article]()
	}
	return found(a)
}
