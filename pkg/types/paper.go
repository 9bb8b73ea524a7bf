// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data structures for the papersynth
// pipeline: the canonical Paper and Analysis records, the aggregate
// TrendReport, the synthesized Report, the per-run RunResult, and the
// stage configuration structs.
package types

import "time"

// Paper holds the normalized metadata and text for one discovered article.
// Created by the fetch stage and never mutated afterwards.
type Paper struct {
	// ID is the stable, source-qualified identifier (e.g. "arxiv:2401.12345").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract, whitespace-normalized.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Excerpt is a full-text excerpt when one could be fetched, empty otherwise.
	Excerpt string `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Published is the publication or preprint date.
	Published time.Time `json:"published" yaml:"published"`

	// Categories are the source's subject tags (e.g. "cs.AI", "cs.LG").
	Categories []string `json:"categories" yaml:"categories"`

	// PrimaryCategory is the source's primary subject tag.
	PrimaryCategory string `json:"primary_category" yaml:"primary_category"`

	// SourceURL is the canonical URL for the paper at its source.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// FetchedAt records when the paper was first fetched.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}
