// Package llmoracle implements [oracle.Oracle] on top of a chat LLM.
//
// The [Oracle] sends one sentence to an [llm.Provider] with a conservative
// system prompt and expects a JSON object holding the corrected sentence and
// an itemised list of edits. Models whose capabilities say they cannot be
// trusted with JSON are asked for the bare sentence instead. Output that cannot be parsed, or that rewrites
// too much of the sentence to still be a grammar fix, is discarded and the
// original sentence is returned unchanged. Transport failures are returned as
// errors so the engine can count them against the circuit breaker.
package llmoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/proofline/pkg/oracle"
	"github.com/MrWong99/proofline/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMinOverlap  = 0.5
	defaultMaxTokens   = 512
)

const systemPrompt = `You are a proofreading assistant embedded in a text editor.

Your task: correct grammar and spelling mistakes in exactly one sentence.

Rules:
- Fix agreement, tense, articles, prepositions and misspelled words.
- Do NOT rephrase, reorder, shorten or extend the sentence.
- Keep the original punctuation at the end of the sentence.
- Keep the original capitalisation style and language.
- If the sentence is already correct, return it unchanged.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<the full corrected sentence>",
  "corrections": [
    {"original": "<original word or words>", "corrected": "<replacement>"}
  ]
}`

const plainPrompt = `You are a proofreading assistant embedded in a text editor.

Correct grammar and spelling mistakes in the sentence you are given. Do not
rephrase, reorder, shorten or extend it. Keep its final punctuation, its
capitalisation style and its language.

Reply with the corrected sentence only, on a single line, without quotes or
commentary. If the sentence is already correct, reply with it unchanged.`

// Edit is one substitution the model reports having made.
type Edit struct {
	Original  string
	Corrected string
}

type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original  string `json:"original"`
		Corrected string `json:"corrected"`
	} `json:"corrections"`
}

// Option is a functional option for configuring an [Oracle].
type Option func(*Oracle)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(o *Oracle) {
		o.temperature = temp
	}
}

// WithMinOverlap sets the fraction of the original words, in order, that a
// correction must keep to be accepted. Default: 0.5.
func WithMinOverlap(f float64) Option {
	return func(o *Oracle) {
		o.minOverlap = f
	}
}

// WithStrict makes the oracle revert every changed span the model did not
// list in its corrections. It has no effect on plain-text models.
func WithStrict() Option {
	return func(o *Oracle) {
		o.strict = true
	}
}

// WithName overrides the name reported to logs and metrics.
func WithName(name string) Option {
	return func(o *Oracle) {
		o.name = name
	}
}

// Oracle corrects sentences with an [llm.Provider]. It is safe for
// concurrent use.
type Oracle struct {
	llm         llm.Provider
	name        string
	temperature float64
	minOverlap  float64
	strict      bool
}

var (
	_ oracle.Oracle = (*Oracle)(nil)
	_ oracle.Named  = (*Oracle)(nil)
)

// New returns an Oracle backed by provider.
func New(provider llm.Provider, opts ...Option) *Oracle {
	o := &Oracle{
		llm:         provider,
		name:        "llm",
		temperature: defaultTemperature,
		minOverlap:  defaultMinOverlap,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name implements [oracle.Named].
func (o *Oracle) Name() string { return o.name }

// Correct implements [oracle.Oracle].
func (o *Oracle) Correct(ctx context.Context, sentence string) (string, error) {
	corrected, _, err := o.CorrectWithEdits(ctx, sentence)
	return corrected, err
}

// CorrectWithEdits is Correct that also returns the edits the model reported
// and that survived verification.
func (o *Oracle) CorrectWithEdits(ctx context.Context, sentence string) (string, []Edit, error) {
	if strings.TrimSpace(sentence) == "" {
		return sentence, nil, nil
	}

	caps := o.llm.Capabilities()
	plain := caps.ContextWindow > 0 && !caps.SupportsJSONMode

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  o.temperature,
		MaxTokens:    defaultMaxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: sentence},
		},
	}
	if plain {
		req.SystemPrompt = plainPrompt
	} else {
		req.JSON = caps.SupportsJSONMode
	}
	if caps.MaxOutputTokens > 0 {
		req.MaxTokens = min(req.MaxTokens, caps.MaxOutputTokens)
	}

	resp, err := o.llm.Complete(ctx, req)
	if err != nil {
		return sentence, nil, fmt.Errorf("llmoracle: complete: %w", err)
	}
	if resp == nil {
		return sentence, nil, fmt.Errorf("llmoracle: complete: %w", oracle.ErrEmptyResult)
	}

	if plain {
		corrected := parsePlain(resp.Content, sentence)
		if corrected == sentence || !plausible(sentence, corrected, o.minOverlap) {
			return sentence, nil, nil
		}
		return corrected, nil, nil
	}

	corrected, edits, parseErr := parseResponse(resp.Content, sentence)
	if parseErr != nil {
		return sentence, nil, nil //nolint:nilerr // unparseable output leaves the sentence as it is
	}
	if corrected == sentence {
		return sentence, nil, nil
	}

	if o.strict {
		corrected, edits = verifyCorrectedText(sentence, corrected, edits)
		return corrected, edits, nil
	}
	if !plausible(sentence, corrected, o.minOverlap) {
		return sentence, nil, nil
	}
	return corrected, edits, nil
}

// parseResponse unmarshals the model output. An empty corrected_text means
// "no change".
func parseResponse(content, original string) (string, []Edit, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return "", nil, fmt.Errorf("llmoracle: parse response: %w", err)
	}

	corrected := strings.TrimSpace(r.CorrectedText)
	if corrected == "" {
		return original, nil, nil
	}
	// Keep leading/trailing whitespace of the input so an identical answer
	// compares equal.
	if strings.TrimSpace(original) == corrected {
		return original, nil, nil
	}

	edits := make([]Edit, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected || c.Original == "" {
			continue
		}
		edits = append(edits, Edit{Original: c.Original, Corrected: c.Corrected})
	}
	return corrected, edits, nil
}

// parsePlain takes the first non-empty line of a bare-text answer. Strict
// mode has no edit list to check against here, so only the plausibility
// guard applies.
func parsePlain(content, original string) string {
	for line := range strings.SplitSeq(stripMarkdown(content), "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, `"“”`)
		if line == "" {
			continue
		}
		if line == strings.TrimSpace(original) {
			return original
		}
		return line
	}
	return original
}

// stripMarkdown removes optional markdown code fences (```json ... ```)
// around the JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
