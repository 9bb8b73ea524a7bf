// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists fetched papers and computed analyses so that
// reruns skip redundant network and LLM work. Papers are keyed by
// identifier; analyses by (identifier, prompt version), so a prompt change
// produces new entries while old ones stay behind for audit.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papersynth/papersynth/pkg/types"
)

// Store manages the pipeline cache SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			abstract TEXT,
			excerpt TEXT,
			authors TEXT,
			published TEXT,
			categories TEXT,
			primary_category TEXT,
			source_url TEXT,
			fetched_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			paper_id TEXT NOT NULL,
			prompt_version TEXT NOT NULL,
			model TEXT,
			methodology TEXT,
			methodology_tags TEXT,
			key_findings TEXT,
			keywords TEXT,
			category TEXT,
			confidence REAL,
			published TEXT,
			created_at TEXT,
			PRIMARY KEY (paper_id, prompt_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_version ON analyses(prompt_version)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// GetPaper returns the cached paper for id, or nil when absent.
func (s *Store) GetPaper(ctx context.Context, id string) (*types.Paper, error) {
	var (
		p                               types.Paper
		authors, categories             string
		published, fetchedAt            string
		abstract, excerpt, primary, url sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, abstract, excerpt, authors, published, categories,
		        primary_category, source_url, fetched_at
		 FROM papers WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &abstract, &excerpt, &authors, &published,
		&categories, &primary, &url, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying paper %s: %w", id, err)
	}

	p.Abstract = abstract.String
	p.Excerpt = excerpt.String
	p.PrimaryCategory = primary.String
	p.SourceURL = url.String
	p.Published = parseTime(published)
	p.FetchedAt = parseTime(fetchedAt)
	if err := json.Unmarshal([]byte(authors), &p.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(categories), &p.Categories); err != nil {
		return nil, fmt.Errorf("decoding categories for %s: %w", id, err)
	}
	return &p, nil
}

// PutPaper writes a paper record. Writing an identical record twice leaves
// state unchanged; a conflicting write for the same key is last-writer-wins.
func (s *Store) PutPaper(ctx context.Context, p types.Paper) error {
	if p.ID == "" {
		return fmt.Errorf("paper has empty ID")
	}
	authorsJSON, _ := json.Marshal(p.Authors)
	categoriesJSON, _ := json.Marshal(p.Categories)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (id, title, abstract, excerpt, authors, published,
		                     categories, primary_category, source_url, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract,
			excerpt=excluded.excerpt, authors=excluded.authors,
			published=excluded.published, categories=excluded.categories,
			primary_category=excluded.primary_category,
			source_url=excluded.source_url, fetched_at=excluded.fetched_at`,
		p.ID, p.Title, p.Abstract, p.Excerpt, string(authorsJSON),
		formatTime(p.Published), string(categoriesJSON), p.PrimaryCategory,
		p.SourceURL, formatTime(p.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting paper %s: %w", p.ID, err)
	}
	return nil
}

// GetAnalysis returns the cached analysis for (id, promptVersion), or nil
// when absent. Entries under other prompt versions are never consulted.
func (s *Store) GetAnalysis(ctx context.Context, id, promptVersion string) (*types.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT paper_id, prompt_version, model, methodology, methodology_tags,
		        key_findings, keywords, category, confidence, published, created_at
		 FROM analyses WHERE paper_id = ? AND prompt_version = ?`,
		id, promptVersion)

	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying analysis %s@%s: %w", id, promptVersion, err)
	}
	return a, nil
}

// PutAnalysis writes an analysis record under its (paper, prompt version)
// key. Idempotent for identical records.
func (s *Store) PutAnalysis(ctx context.Context, a types.Analysis) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to cache invalid analysis: %w", err)
	}
	if a.PromptVersion == "" {
		return fmt.Errorf("analysis has empty prompt version")
	}
	tagsJSON, _ := json.Marshal(a.MethodologyTags)
	findingsJSON, _ := json.Marshal(a.KeyFindings)
	keywordsJSON, _ := json.Marshal(a.Keywords)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (paper_id, prompt_version, model, methodology,
		                       methodology_tags, key_findings, keywords, category,
		                       confidence, published, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id, prompt_version) DO UPDATE SET
			model=excluded.model, methodology=excluded.methodology,
			methodology_tags=excluded.methodology_tags,
			key_findings=excluded.key_findings, keywords=excluded.keywords,
			category=excluded.category, confidence=excluded.confidence,
			published=excluded.published, created_at=excluded.created_at`,
		a.PaperID, a.PromptVersion, a.Model, a.Methodology, string(tagsJSON),
		string(findingsJSON), string(keywordsJSON), a.Category, a.Confidence,
		formatTime(a.Published), formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting analysis %s@%s: %w", a.PaperID, a.PromptVersion, err)
	}
	return nil
}

// Analyses returns every cached analysis under promptVersion, ordered by
// paper ID for determinism.
func (s *Store) Analyses(ctx context.Context, promptVersion string) ([]types.Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id, prompt_version, model, methodology, methodology_tags,
		        key_findings, keywords, category, confidence, published, created_at
		 FROM analyses WHERE prompt_version = ? ORDER BY paper_id`,
		promptVersion)
	if err != nil {
		return nil, fmt.Errorf("querying analyses for %s: %w", promptVersion, err)
	}
	defer rows.Close()

	var out []types.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*types.Analysis, error) {
	var (
		a                              types.Analysis
		tags, findings, keywords       string
		category, published, createdAt sql.NullString
		model, methodology             sql.NullString
	)
	err := row.Scan(&a.PaperID, &a.PromptVersion, &model, &methodology,
		&tags, &findings, &keywords, &category, &a.Confidence,
		&published, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Model = model.String
	a.Methodology = methodology.String
	a.Category = category.String
	a.Published = parseTime(published.String)
	a.CreatedAt = parseTime(createdAt.String)
	if err := json.Unmarshal([]byte(tags), &a.MethodologyTags); err != nil {
		return nil, fmt.Errorf("decoding methodology tags: %w", err)
	}
	if err := json.Unmarshal([]byte(findings), &a.KeyFindings); err != nil {
		return nil, fmt.Errorf("decoding key findings: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
		return nil, fmt.Errorf("decoding keywords: %w", err)
	}
	return &a, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
