// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/papersynth/papersynth/internal/httputil"
)

// API endpoints declared as vars so tests can substitute httptest servers.
var (
	arxivAPIBase = "https://export.arxiv.org/api/query"
	ar5ivBase    = "https://ar5iv.labs.arxiv.org/html"
)

// excerptMaxLen caps the full-text excerpt so analysis prompts stay within
// token limits.
const excerptMaxLen = 4000

// ArxivSource queries the arXiv Atom API and fetches full-text excerpts
// from the ar5iv HTML renderings.
type ArxivSource struct {
	Client     *http.Client
	UserAgent  string
	MaxRetries int
}

// Name returns the source identifier used to qualify paper IDs.
func (s *ArxivSource) Name() string { return "arxiv" }

// Search queries the arXiv API sorted by submission date, newest first.
func (s *ArxivSource) Search(ctx context.Context, f Filter) ([]Record, error) {
	q := buildArxivQuery(f)
	if q == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}

	params := url.Values{}
	params.Set("search_query", q)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(f.MaxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.client(), req, s.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var records []Record
	for _, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		rec := Record{
			ID:              arxivID,
			Title:           collapseWhitespace(entry.Title),
			Abstract:        collapseWhitespace(entry.Summary),
			Published:       entry.Published,
			PrimaryCategory: entry.PrimaryCategory.Term,
			SourceURL:       "https://arxiv.org/abs/" + arxivID,
		}
		for _, a := range entry.Authors {
			rec.Authors = append(rec.Authors, strings.TrimSpace(a.Name))
		}
		for _, c := range entry.Categories {
			rec.Categories = append(rec.Categories, c.Term)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Excerpt fetches the ar5iv HTML rendering of a paper and extracts leading
// body text. Papers without an ar5iv rendering return an error; the caller
// falls back to abstract-only analysis.
func (s *ArxivSource) Excerpt(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ar5ivBase+"/"+id, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.client(), req, s.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("ar5iv request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ar5iv returned HTTP %d for %s", resp.StatusCode, id)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing ar5iv HTML: %w", err)
	}

	var b strings.Builder
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := collapseWhitespace(sel.Text())
		if text == "" {
			return true
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		return b.Len() < excerptMaxLen
	})

	excerpt := b.String()
	if excerpt == "" {
		return "", fmt.Errorf("ar5iv page for %s has no body text", id)
	}
	if len(excerpt) > excerptMaxLen {
		// Cut on a rune boundary so the prompt never sees invalid UTF-8.
		cut := excerptMaxLen
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	return excerpt, nil
}

func (s *ArxivSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// buildArxivQuery combines the category restriction and free-text terms
// into a search_query value, e.g.
// `(cat:cs.AI OR cat:cs.LG) AND (all:"large language models")`.
func buildArxivQuery(f Filter) string {
	var parts []string

	if len(f.Categories) > 0 {
		cats := make([]string, len(f.Categories))
		for i, c := range f.Categories {
			cats[i] = "cat:" + c
		}
		parts = append(parts, "("+strings.Join(cats, " OR ")+")")
	}
	if f.Query != "" {
		parts = append(parts, fmt.Sprintf("(all:%q)", f.Query))
	}

	return strings.Join(parts, " AND ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID              string          `xml:"id"`
	Title           string          `xml:"title"`
	Summary         string          `xml:"summary"`
	Published       string          `xml:"published"`
	Authors         []arxivAuthor   `xml:"author"`
	Categories      []arxivCategory `xml:"category"`
	PrimaryCategory arxivCategory   `xml:"primary_category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// collapseWhitespace trims and folds internal whitespace runs, including
// the newline-indented wrapping arXiv uses in titles and abstracts.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
