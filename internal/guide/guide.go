// Package guide answers questions a user asks while a walkthrough is playing.
package guide

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vincentbai/stepcoach/internal/llm"
	"github.com/vincentbai/stepcoach/internal/models"
	"github.com/vincentbai/stepcoach/internal/processor"
)

// MaxHistory is how many earlier turns are sent with a question.
const MaxHistory = 10

var (
	ErrStepOutOfRange = errors.New("step index out of range")
	ErrEmptyQuestion  = errors.New("question is empty")
)

const systemPrompt = `You are a patient coach helping someone follow an interactive walkthrough of a web application.
Answer the user's question about the current step in at most three short sentences.
If the question is unrelated to the walkthrough, steer the user back to the current step.`

type Turn struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

type Guide struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Guide {
	return &Guide{provider: provider}
}

func (g *Guide) Chat(ctx context.Context, walkthrough *models.Walkthrough, stepIndex int, history []Turn, question string) (string, error) {
	if stepIndex < 0 || stepIndex >= len(walkthrough.Steps) {
		return "", fmt.Errorf("%w: %d of %d", ErrStepOutOfRange, stepIndex, len(walkthrough.Steps))
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	answer, err := g.provider.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    Prompt(walkthrough, stepIndex, history, question),
		MaxTokens: 400,
	})
	if err != nil {
		return "", fmt.Errorf("guide chat: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Prompt lays out the walkthrough context, the recent conversation and the question.
func Prompt(walkthrough *models.Walkthrough, stepIndex int, history []Turn, question string) string {
	step := walkthrough.Steps[stepIndex]

	var b strings.Builder
	fmt.Fprintf(&b, "Walkthrough: %s\n", walkthrough.Title)
	if summary := walkthrough.Summary(); summary != "" {
		fmt.Fprintf(&b, "About: %s\n", summary)
	}
	fmt.Fprintf(&b, "Current step: %d of %d\n", stepIndex+1, len(walkthrough.Steps))
	fmt.Fprintf(&b, "Instruction: %s\n", instructionFor(step))
	fmt.Fprintf(&b, "Page: %s\n", step.URL)
	if element := step.Element; element != nil {
		fmt.Fprintf(&b, "Target element: <%s>", element.Tag)
		if label := firstNonEmpty(element.AriaLabel, element.Text, element.Placeholder, element.Name); label != "" {
			fmt.Fprintf(&b, " %q", label)
		}
		b.WriteString("\n")
	}
	if stepIndex+1 < len(walkthrough.Steps) {
		fmt.Fprintf(&b, "Next step: %s\n", instructionFor(walkthrough.Steps[stepIndex+1]))
	}

	recent := Recent(history)
	if len(recent) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, turn := range recent {
			role := "User"
			if turn.Role == "assistant" {
				role = "Coach"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(turn.Content))
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", question)
	return b.String()
}

// Recent keeps the last MaxHistory non-empty turns.
func Recent(history []Turn) []Turn {
	var kept []Turn
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) != "" {
			kept = append(kept, turn)
		}
	}
	if len(kept) > MaxHistory {
		kept = kept[len(kept)-MaxHistory:]
	}
	return kept
}

func instructionFor(step models.Step) string {
	if step.Instruction != "" {
		return step.Instruction
	}
	return processor.FallbackInstruction(step)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
