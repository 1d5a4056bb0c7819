// Package processor turns recorded steps into readable instructions and a
// walkthrough summary using the configured model.
package processor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"github.com/vincentbai/stepcoach/internal/blobstore"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/llm"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/models"
	"github.com/vincentbai/stepcoach/internal/xpath"
)

const (
	DefaultConcurrency   = 4
	maxInstructionLength = 300
	maxSummaryLength     = 600
	maxAttempts          = 3
)

type Processor struct {
	db          *database.Database
	blobs       *blobstore.Store
	provider    llm.Provider
	concurrency int
	policy      *bluemonday.Policy
}

func New(db *database.Database, blobs *blobstore.Store, provider llm.Provider, concurrency int) *Processor {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Processor{
		db:          db,
		blobs:       blobs,
		provider:    provider,
		concurrency: concurrency,
		policy:      bluemonday.StrictPolicy(),
	}
}

// Instruction asks the model for one sentence describing step. When the model
// fails the template instruction is returned instead; only a cancelled
// context is reported as an error.
func (p *Processor) Instruction(ctx context.Context, step models.Step) (string, error) {
	image, mediaType := p.screenshot(step.Screenshot)
	answer, err := p.provider.Complete(ctx, llm.Request{
		System:    instructionSystemPrompt,
		Prompt:    InstructionPrompt(step),
		Image:     image,
		MediaType: mediaType,
		MaxTokens: 120,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Warnf("instruction for step %d fell back to template: %v", step.Index, err)
		return FallbackInstruction(step), nil
	}

	cleaned := p.clean(answer, maxInstructionLength)
	if cleaned == "" {
		return FallbackInstruction(step), nil
	}
	return cleaned, nil
}

// Summary describes the whole walkthrough, falling back to a template.
func (p *Processor) Summary(ctx context.Context, walkthrough *models.Walkthrough) (string, error) {
	answer, err := p.provider.Complete(ctx, llm.Request{
		System:    summarySystemPrompt,
		Prompt:    summaryPrompt(walkthrough),
		MaxTokens: 300,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Warnf("summary for walkthrough %s fell back to template: %v", walkthrough.ID, err)
		return FallbackSummary(walkthrough), nil
	}

	cleaned := p.clean(answer, maxSummaryLength)
	if cleaned == "" {
		return FallbackSummary(walkthrough), nil
	}
	return cleaned, nil
}

// Process fills every missing instruction, writes the summary and marks the
// walkthrough ready. Walkthroughs that are already ready are returned as is.
// When the steps are replaced mid-run the work is redone against the new
// steps. On failure the walkthrough stays processing for the sweeper to retry.
func (p *Processor) Process(ctx context.Context, id string) (*models.Walkthrough, error) {
	for attempt := 1; ; attempt++ {
		updated, err := p.process(ctx, id)
		if errors.Is(err, database.ErrChanged) && attempt < maxAttempts {
			logging.Infof("steps of walkthrough %s changed while processing, starting over", id)
			continue
		}
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, err
			}
			return nil, p.fail(ctx, id, err)
		}
		return updated, nil
	}
}

func (p *Processor) process(ctx context.Context, id string) (*models.Walkthrough, error) {
	walkthrough, err := p.db.GetWalkthrough(ctx, id)
	if err != nil {
		return nil, err
	}
	if walkthrough.Status == models.StatusReady {
		return walkthrough, nil
	}
	logging.Infof("processing walkthrough %s (%d steps)", id, len(walkthrough.Steps))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)
	for position, step := range walkthrough.Steps {
		if step.Instruction != "" {
			continue
		}
		group.Go(func() error {
			instruction, err := p.Instruction(groupCtx, step)
			if err != nil {
				return err
			}
			walkthrough.Steps[position].Instruction = instruction
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	summary, err := p.Summary(ctx, walkthrough)
	if err != nil {
		return nil, err
	}

	updated, err := p.db.CompleteProcessing(ctx, id, walkthrough.Steps, summary)
	if err != nil {
		return nil, err
	}
	logging.Infof("walkthrough %s ready", id)
	return updated, nil
}

func (p *Processor) fail(ctx context.Context, id string, cause error) error {
	logging.Errorf("processing walkthrough %s failed: %v", id, cause)
	if err := p.db.Touch(context.WithoutCancel(ctx), id); err != nil {
		logging.Errorf("failed to touch walkthrough %s: %v", id, err)
	}
	return fmt.Errorf("process walkthrough %s: %w", id, cause)
}

// screenshot loads a stored reference or decodes an inline data URL. Missing
// or unreadable screenshots are skipped.
func (p *Processor) screenshot(reference string) ([]byte, string) {
	if reference == "" {
		return nil, ""
	}
	if key, ok := blobstore.KeyFromRef(reference); ok && p.blobs != nil {
		data, err := p.blobs.Read(key)
		if err != nil {
			logging.Warnf("screenshot %s unavailable: %v", key, err)
			return nil, ""
		}
		return data, blobstore.MediaType(key)
	}
	if blobstore.IsDataURL(reference) {
		data, mediaType, _, err := blobstore.DecodeDataURL(reference)
		if err != nil {
			logging.Warnf("inline screenshot ignored: %v", err)
			return nil, ""
		}
		return data, mediaType
	}
	return nil, ""
}

// clean keeps the first line of a model answer, strips wrapping quotes and
// any markup. The result is plain text, so the entities the sanitizer
// escapes are decoded again.
func (p *Processor) clean(answer string, limit int) string {
	answer = strings.TrimSpace(answer)
	if line, _, found := strings.Cut(answer, "\n"); found {
		answer = strings.TrimSpace(line)
	}
	answer = stripQuotes(answer)
	answer = html.UnescapeString(p.policy.Sanitize(answer))
	return xpath.Truncate(strings.TrimSpace(answer), limit)
}

func stripQuotes(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"`", "`"}}
	for {
		stripped := false
		for _, pair := range pairs {
			if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
				s = strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}
