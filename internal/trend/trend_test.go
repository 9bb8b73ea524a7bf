// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trend

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papersynth/papersynth/pkg/types"
)

func analysis(id string, keywords, tags []string, category string, confidence float64, published time.Time) types.Analysis {
	return types.Analysis{
		PaperID:         id,
		Keywords:        keywords,
		MethodologyTags: tags,
		Category:        category,
		Confidence:      confidence,
		Published:       published,
	}
}

func sampleBatch() []types.Analysis {
	wk1 := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC) // week 34
	wk2 := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) // week 35
	return []types.Analysis{
		analysis("arxiv:a", []string{"agents", "llm"}, []string{"reinforcement-learning"}, "NLP", 0.9, wk1),
		analysis("arxiv:b", []string{"llm"}, []string{"fine-tuning"}, "NLP", 0.7, wk2),
		analysis("arxiv:c", []string{"diffusion"}, []string{"diffusion-model"}, "computer vision", 0.8, wk2),
	}
}

func TestComputeCounts(t *testing.T) {
	report := Compute(sampleBatch())

	assert.Equal(t, 3, report.AnalysisCount)
	assert.InDelta(t, 0.8, report.AvgConfidence, 1e-9)

	require.NotEmpty(t, report.Keywords)
	assert.Equal(t, types.TrendCount{Key: "llm", Count: 2}, report.Keywords[0])

	assert.Equal(t, []types.TrendCount{
		{Key: "NLP", Count: 2},
		{Key: "computer vision", Count: 1},
	}, report.Categories)

	assert.Equal(t, []types.TrendCount{
		{Key: "2026-W34", Count: 1},
		{Key: "2026-W35", Count: 2},
	}, report.Weekly)
}

func TestComputeTieBreakByKey(t *testing.T) {
	report := Compute([]types.Analysis{
		analysis("arxiv:a", []string{"zebra", "apple"}, nil, "", 0.5, time.Time{}),
	})

	assert.Equal(t, []types.TrendCount{
		{Key: "apple", Count: 1},
		{Key: "zebra", Count: 1},
	}, report.Keywords)
}

func TestComputeOrderIndependent(t *testing.T) {
	batch := sampleBatch()
	want := Compute(batch)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]types.Analysis, len(batch))
		copy(shuffled, batch)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, Compute(shuffled))
	}
}

func TestComputeEmptyInput(t *testing.T) {
	report := Compute(nil)

	assert.Equal(t, 0, report.AnalysisCount)
	assert.Zero(t, report.AvgConfidence)
	assert.Empty(t, report.Keywords)
	assert.Empty(t, report.Methodologies)
	assert.Empty(t, report.Categories)
	assert.Empty(t, report.Weekly)
}

func TestComputeSkipsBlankCategoryAndZeroDate(t *testing.T) {
	report := Compute([]types.Analysis{
		analysis("arxiv:a", []string{"k"}, nil, "  ", 0.5, time.Time{}),
	})

	assert.Empty(t, report.Categories)
	assert.Empty(t, report.Weekly)
	assert.Equal(t, 1, report.AnalysisCount)
}

func TestMethodologyCountsSumToTagOccurrences(t *testing.T) {
	batch := sampleBatch()
	report := Compute(batch)

	wantTags := 0
	for _, a := range batch {
		wantTags += len(a.MethodologyTags)
	}
	gotTags := 0
	for _, c := range report.Methodologies {
		gotTags += c.Count
	}
	assert.Equal(t, wantTags, gotTags)
}
