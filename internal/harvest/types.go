package harvest

import (
	"net/http"
	"time"
)

// Mode selects how a page is fetched.
type Mode string

// Supported transport modes.
const (
	ModeDirect    Mode = "direct"
	ModeAutomated Mode = "automated"
)

// Valid reports whether m is a known transport mode.
func (m Mode) Valid() bool {
	return m == ModeDirect || m == ModeAutomated
}

// NoTitle is stored when a page has no usable <title>.
const NoTitle = "No title"

// Document is the canonical extracted record for one URL.
type Document struct {
	Metadata Metadata `json:"metadata" bson:"metadata"`
	Content  Content  `json:"content" bson:"content"`
}

// Metadata describes where and when a document was harvested.
type Metadata struct {
	// URL is always the originally requested URL, never a redirect target.
	URL         string    `json:"url" bson:"url"`
	FetchedAt   time.Time `json:"fetched_at" bson:"fetched_at"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Keywords    string    `json:"keywords" bson:"keywords"`
	ContentHash string    `json:"content_hash,omitempty" bson:"content_hash,omitempty"`
	Mode        Mode      `json:"mode,omitempty" bson:"mode,omitempty"`
}

// Content holds the ordered sequences extracted from the page body.
type Content struct {
	Headings   []Heading `json:"headings" bson:"headings"`
	Paragraphs []string  `json:"paragraphs" bson:"paragraphs"`
	Links      []Link    `json:"links" bson:"links"`
	Tables     []Table   `json:"tables" bson:"tables"`
	Article    *Article  `json:"article,omitempty" bson:"article,omitempty"`

	// Flow interleaves headings and paragraphs in document order. It feeds the
	// spreadsheet text sheet and is not part of the record file.
	Flow []Block `json:"-" bson:"-"`
}

// Heading is an h1, h2 or h3 element.
type Heading struct {
	Level int    `json:"level" bson:"level"`
	Tag   string `json:"tag" bson:"tag"`
	Text  string `json:"text" bson:"text"`
}

// Link is an absolute anchor with visible text.
type Link struct {
	Text string `json:"text" bson:"text"`
	URL  string `json:"url" bson:"url"`
}

// Table is an HTML table converted into named columns.
type Table struct {
	Name    string              `json:"name" bson:"name"`
	Columns []string            `json:"columns" bson:"columns"`
	Rows    []map[string]string `json:"rows" bson:"rows"`
}

// Article is the readability summary of the page, when one could be found.
type Article struct {
	Title   string `json:"title,omitempty" bson:"title,omitempty"`
	Excerpt string `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	Text    string `json:"text,omitempty" bson:"text,omitempty"`
}

// BlockType tags an entry of Content.Flow.
type BlockType string

// Flow block types.
const (
	BlockHeading   BlockType = "Heading"
	BlockParagraph BlockType = "Paragraph"
)

// Block is a heading or paragraph in document order.
type Block struct {
	Type BlockType
	Text string
}

// IsEmpty reports whether no content sequence holds anything.
func (c Content) IsEmpty() bool {
	return len(c.Headings) == 0 && len(c.Paragraphs) == 0 && len(c.Links) == 0 && len(c.Tables) == 0
}

// FetchRequest captures everything a Fetcher needs for one attempt.
type FetchRequest struct {
	URL         string
	Mode        Mode
	ScrollToEnd bool
}

// Page is the raw result of a successful fetch.
type Page struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	ContentType  string
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
}

// Markup is raw page content handed to the extractor.
type Markup struct {
	Body        []byte
	ContentType string
}

// Markup returns the extractor input carried by the page.
func (p Page) Markup() Markup {
	return Markup{Body: p.Body, ContentType: p.ContentType}
}

// Paths locates the files written for one document.
type Paths struct {
	Record string `json:"record"`
	Table  string `json:"table,omitempty"`
}

// SavedDocument is handed to archivers once the local files exist.
type SavedDocument struct {
	RunID    string
	Prefix   string
	Document *Document
	Paths    Paths
}
