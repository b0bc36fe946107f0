package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackzampolin/problembook/internal/providers"
	"github.com/jackzampolin/problembook/internal/retry"
)

const systemPrompt = `You are an expert at analysing scanned mathematics textbooks with 99% accuracy.`

const extractionPrompt = `TASK: Parse the OCR text below and extract EVERY problem with its sub-problems, and every theory block.

RULES:
1. Problem numbers look like 223, 224, 225 (integers, possibly dotted: 1.1, 1.2).
2. Sub-problems ALWAYS start with a letter and a bracket: а), б), в) ... or a), b), c).
3. A problem ends before the next problem or at the end of the text.
4. "Пример 1" / "Example 1" is an example, not a problem.
5. Theory blocks are theorems, definitions, properties, formulas and proofs.
6. Keep LaTeX as written ($...$ inline, $$...$$ display).
7. If the page opens with text that continues a problem from the previous page, emit it as a problem with an empty "number" and "continues_from_prev": true.
8. If the last problem is cut off at the end of the page, set "continues_to_next": true.

Respond with ONLY JSON (no markdown) of this shape:
{"problems":[{"number":"289","content":"full text including sub-problems","sub_problems":[{"letter":"а","content":"text without 'а)'"}],"continues_from_prev":false,"continues_to_next":false}],
 "theory_blocks":[{"type":"theorem","title":"1","content":"..."}],
 "confidence":0.9}

OCR text:`

var extractionSchema = providers.MustCompileSchema("extraction.json", `{
	"type": "object",
	"properties": {
		"problems": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"number": {"type": "string"},
					"content": {"type": "string", "minLength": 1},
					"sub_problems": {
						"type": ["array", "null"],
						"items": {
							"type": "object",
							"properties": {
								"letter": {"type": "string"},
								"content": {"type": "string"}
							},
							"required": ["letter", "content"]
						}
					},
					"continues_from_prev": {"type": "boolean"},
					"continues_to_next": {"type": "boolean"}
				},
				"required": ["content"]
			}
		},
		"theory_blocks": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"type": {"type": "string"},
					"title": {"type": "string"},
					"content": {"type": "string", "minLength": 1}
				},
				"required": ["content"]
			}
		},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["problems"]
}`)

type aiProblem struct {
	Number            string       `json:"number"`
	Content           string       `json:"content"`
	SubProblems       []SubProblem `json:"sub_problems"`
	ContinuesFromPrev bool         `json:"continues_from_prev"`
	ContinuesToNext   bool         `json:"continues_to_next"`
}

type aiTheory struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type aiOutput struct {
	Problems     []aiProblem `json:"problems"`
	TheoryBlocks []aiTheory  `json:"theory_blocks"`
	Confidence   *float64    `json:"confidence"`
}

func (o *aiOutput) toResult() *Result {
	r := &Result{Source: SourceAI, Confidence: o.Confidence}
	for _, p := range o.Problems {
		r.Problems = append(r.Problems, Problem{
			Number:            p.Number,
			Content:           strings.TrimSpace(p.Content),
			SubProblems:       p.SubProblems,
			Formulas:          Formulas(p.Content),
			ContinuesFromPrev: p.ContinuesFromPrev,
			ContinuesToNext:   p.ContinuesToNext,
		})
	}
	for _, t := range o.TheoryBlocks {
		typ, ok := theoryTypes[strings.ToLower(strings.TrimSpace(t.Type))]
		if !ok {
			typ = TheoryOther
		}
		r.TheoryBlocks = append(r.TheoryBlocks, TheoryBlock{
			Type:     typ,
			Title:    strings.TrimSpace(t.Title),
			Content:  strings.TrimSpace(t.Content),
			Formulas: Formulas(t.Content),
		})
	}
	return r
}

var (
	duplicateLetterRe = regexp.MustCompile(`([а-яa-z])\n\s*([а-яa-z])`)
	blankLinesRe      = regexp.MustCompile(`\n\s*\n`)
)

// cleanOCR removes common OCR artifacts before the text is sent out:
// letters doubled across a line break and runs of blank lines.
func cleanOCR(text string) string {
	text = duplicateLetterRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := duplicateLetterRe.FindStringSubmatch(m)
		if sub[1] == sub[2] {
			return sub[1]
		}
		return m
	})
	return blankLinesRe.ReplaceAllString(text, "\n")
}

// AIConfig configures an AIExtractor.
type AIConfig struct {
	Caller      providers.Caller
	Policy      retry.Policy
	Model       string
	Temperature float64 // default: 0.05
	MaxTokens   int
	Logger      *slog.Logger
}

// AIExtractor asks a model for structured blocks. Every call goes through
// the retry policy. Output that fails to parse or match the schema is not
// retried and is reported as a rejected result.
type AIExtractor struct {
	caller      providers.Caller
	policy      retry.Policy
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewAIExtractor creates an AI extractor over cfg.Caller.
func NewAIExtractor(cfg AIConfig) *AIExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.05
	}
	policy := cfg.Policy
	policy.Name = "extract/" + cfg.Caller.Name()
	policy.Logger = logger
	return &AIExtractor{
		caller:      cfg.Caller,
		policy:      policy,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With("component", "ai_extractor", "provider", cfg.Caller.Name()),
	}
}

// Name identifies the extractor and its provider, e.g. "ai/mistral".
func (e *AIExtractor) Name() string {
	return "ai/" + e.caller.Name()
}

// Model returns the model requests are sent to: the configured one, or the
// provider default.
func (e *AIExtractor) Model() string {
	if e.model != "" {
		return e.model
	}
	return providers.ModelOf(e.caller)
}

// Extract calls the model under the retry policy. The returned error is
// ctx.Err(), a *retry.ExhaustedError, a *retry.PermanentError, or an
// invalidResultError when the model answered with unusable output.
func (e *AIExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	req := &providers.Request{
		System:      systemPrompt,
		Prompt:      extractionPrompt,
		Input:       cleanOCR(in.Text),
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	}

	out, err := retry.Do(ctx, e.policy, func(ctx context.Context) (*aiOutput, error) {
		text, err := e.caller.Call(ctx, req)
		if err != nil {
			return nil, err
		}
		var o aiOutput
		if err := providers.DecodeStructured(e.caller.Name(), text, extractionSchema, &o); err != nil {
			return nil, err
		}
		return &o, nil
	})
	if providers.IsBadOutput(err) {
		return nil, &invalidResultError{err: err}
	}
	if err != nil {
		return nil, err
	}

	r := out.toResult()
	finalize(r, in)
	e.logger.Debug("ai extraction complete",
		"book_id", in.BookID,
		"page", in.Page,
		"problems", len(r.Problems),
		"theory_blocks", len(r.TheoryBlocks))
	return r, nil
}
