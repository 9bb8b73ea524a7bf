// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch discovers recently published papers from an external
// source, normalizes them into the internal paper model, and records them
// in the cache. Malformed records are skipped and logged rather than
// failing the batch.
package fetch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/papersynth/papersynth/internal/cache"
	"github.com/papersynth/papersynth/pkg/types"
)

// Record is a raw discovery result before normalization. Published is the
// source's own timestamp string; normalization parses and validates it.
type Record struct {
	ID              string
	Title           string
	Abstract        string
	Authors         []string
	Published       string
	Categories      []string
	PrimaryCategory string
	SourceURL       string
}

// Filter holds the discovery parameters passed to a Source.
type Filter struct {
	Query      string
	Categories []string
	MaxResults int
	Since      time.Time
}

// Source searches one external paper index. Implementations follow the
// Strategy pattern so tests can substitute a stub.
type Source interface {
	Name() string
	Search(ctx context.Context, f Filter) ([]Record, error)
}

// Excerpter is an optional Source capability: fetching a full-text excerpt
// for a single record ID. Excerpt failures degrade the paper to
// abstract-only analysis, never the run.
type Excerpter interface {
	Excerpt(ctx context.Context, id string) (string, error)
}

const defaultMaxResults = 20

// Fetch runs discovery against src and returns normalized papers, newest
// first. Papers already cached are reused as-is (including any stored
// excerpt); new papers are written to the cache before return.
//
// An error from the source fails the whole stage: the caller cannot
// distinguish an empty topic from an unreachable index, so no partial
// result is returned.
func Fetch(ctx context.Context, src Source, store *cache.Store, cfg types.FetchConfig, now time.Time, log zerolog.Logger) ([]types.Paper, error) {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	var since time.Time
	if cfg.Window > 0 {
		since = now.Add(-cfg.Window)
	}

	records, err := src.Search(ctx, Filter{
		Query:      cfg.Query,
		Categories: cfg.Categories,
		MaxResults: maxResults,
		Since:      since,
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", src.Name(), err)
	}

	papers := normalize(src.Name(), records, since, log)

	sort.Slice(papers, func(i, j int) bool {
		if !papers[i].Published.Equal(papers[j].Published) {
			return papers[i].Published.After(papers[j].Published)
		}
		return papers[i].ID < papers[j].ID
	})
	if len(papers) > maxResults {
		papers = papers[:maxResults]
	}

	excerpter, _ := src.(Excerpter)
	out := make([]types.Paper, 0, len(papers))
	for _, p := range papers {
		cached, err := store.GetPaper(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("reading paper cache: %w", err)
		}
		if cached != nil {
			log.Debug().Str("paper", p.ID).Msg("paper cache hit")
			out = append(out, *cached)
			continue
		}

		if cfg.FetchExcerpts && excerpter != nil {
			excerpt, err := excerpter.Excerpt(ctx, rawID(p.ID))
			if err != nil {
				log.Warn().Err(err).Str("paper", p.ID).
					Msg("excerpt fetch failed, falling back to abstract")
			} else {
				p.Excerpt = excerpt
			}
		}

		p.FetchedAt = now.UTC()
		if err := store.PutPaper(ctx, p); err != nil {
			return nil, fmt.Errorf("caching paper %s: %w", p.ID, err)
		}
		out = append(out, p)
	}

	log.Info().Int("papers", len(out)).Str("source", src.Name()).
		Msg("discovery complete")
	return out, nil
}

// normalize converts raw records into papers, dropping records that lack
// an ID, a title, or a parseable timestamp, records older than since, and
// duplicates of an ID already seen.
func normalize(source string, records []Record, since time.Time, log zerolog.Logger) []types.Paper {
	seen := make(map[string]bool, len(records))
	var papers []types.Paper

	for _, rec := range records {
		if rec.ID == "" || strings.TrimSpace(rec.Title) == "" {
			log.Warn().Str("source", source).Str("id", rec.ID).
				Msg("skipping record with missing identifier or title")
			continue
		}
		published, err := time.Parse(time.RFC3339, rec.Published)
		if err != nil {
			log.Warn().Str("source", source).Str("id", rec.ID).
				Str("published", rec.Published).
				Msg("skipping record with unparseable publication date")
			continue
		}
		if !since.IsZero() && published.Before(since) {
			continue
		}

		id := source + ":" + rec.ID
		if seen[id] {
			continue
		}
		seen[id] = true

		papers = append(papers, types.Paper{
			ID:              id,
			Title:           strings.TrimSpace(rec.Title),
			Abstract:        strings.TrimSpace(rec.Abstract),
			Authors:         rec.Authors,
			Published:       published,
			Categories:      rec.Categories,
			PrimaryCategory: rec.PrimaryCategory,
			SourceURL:       rec.SourceURL,
		})
	}
	return papers
}

// rawID strips the source qualifier from a paper ID
// (e.g. "arxiv:2401.12345" → "2401.12345").
func rawID(id string) string {
	if idx := strings.Index(id, ":"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
