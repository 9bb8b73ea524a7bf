// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/papersynth/papersynth/pkg/types"
)

// analysisPromptTmpl is the per-paper analysis prompt. It instructs the
// model to classify the paper and return a single JSON object.
var analysisPromptTmpl = template.Must(template.New("analysis").Parse(`You are a research trend analysis system. Analyze the following paper and respond with a single JSON object describing it.

The object must have exactly these fields:
- methodology: one sentence naming the paper's primary technical approach
- methodology_tags: one or more lowercase, hyphenated labels for the approach (e.g. "reinforcement-learning", "diffusion-model")
- key_findings: one to three short sentences quoting or closely paraphrasing the paper's main results
- keywords: three to eight lowercase topic keywords drawn from the paper's vocabulary
- category: a single broad research area label (e.g. "NLP", "computer vision", "robotics")
- confidence: a float between 0.0 and 1.0 indicating how certain you are about this analysis

Respond with the JSON object only. Do not include any text outside it.

Title: {{.Title}}

Abstract:
{{.Abstract}}
{{if .Excerpt}}
Body excerpt:
{{.Excerpt}}
{{end}}`))

// analysisResponse mirrors the JSON schema the prompt requests.
type analysisResponse struct {
	Methodology     string   `json:"methodology"`
	MethodologyTags []string `json:"methodology_tags"`
	KeyFindings     []string `json:"key_findings"`
	Keywords        []string `json:"keywords"`
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
}

// renderPrompt executes the analysis prompt template for one paper.
func renderPrompt(p types.Paper) (string, error) {
	var buf bytes.Buffer
	err := analysisPromptTmpl.Execute(&buf, struct {
		Title, Abstract, Excerpt string
	}{p.Title, p.Abstract, p.Excerpt})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseResponse decodes a model completion into an analysisResponse.
// Models sometimes wrap the JSON in a Markdown code fence despite the
// prompt; the fence is stripped before decoding.
func parseResponse(text string) (analysisResponse, error) {
	cleaned := stripCodeFence(text)

	var resp analysisResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return analysisResponse{}, fmt.Errorf("parsing analysis JSON: %w", err)
	}

	resp.Keywords = normalizeKeywords(resp.Keywords)
	resp.MethodologyTags = normalizeKeywords(resp.MethodologyTags)
	return resp, nil
}

// validateResponse rejects responses that would fail cache validation.
func validateResponse(resp analysisResponse) error {
	if strings.TrimSpace(resp.Methodology) == "" {
		return fmt.Errorf("empty methodology")
	}
	if len(resp.Keywords) == 0 {
		return fmt.Errorf("no keywords")
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range [0,1]", resp.Confidence)
	}
	return nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeKeywords lowercases, trims, and deduplicates while preserving
// first-seen order.
func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	var out []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
