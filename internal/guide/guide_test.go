package guide

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentbai/stepcoach/internal/llm"
	"github.com/vincentbai/stepcoach/internal/models"
)

func sampleWalkthrough() *models.Walkthrough {
	return &models.Walkthrough{
		Title:    "Send a reminder",
		Metadata: map[string]any{"summary": "Shows how to remind a customer about an unpaid invoice."},
		Steps: []models.Step{
			{Index: 0, Type: models.StepNavigate, URL: "https://app.example.com/invoices", Instruction: "Open **Invoices**"},
			{Index: 1, Type: models.StepClick, URL: "https://app.example.com/invoices", Element: &models.Element{Tag: "button", Text: "Remind"}},
		},
	}
}

func TestChat(t *testing.T) {
	provider := &llm.Static{Response: "  It is the button on the right.  "}
	coach := New(provider)

	answer, err := coach.Chat(context.Background(), sampleWalkthrough(), 1, nil, "Where is it?")
	require.NoError(t, err)
	assert.Equal(t, "It is the button on the right.", answer)

	requests := provider.Requests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Prompt, "Current step: 2 of 2")
	assert.Contains(t, requests[0].Prompt, `Instruction: Click "Remind"`)
	assert.Contains(t, requests[0].Prompt, "Question: Where is it?")
	assert.Contains(t, requests[0].Prompt, "About: Shows how to remind")
}

func TestChatRejectsBadInput(t *testing.T) {
	coach := New(&llm.Static{Response: "ok"})
	ctx := context.Background()

	for _, index := range []int{-1, 2} {
		_, err := coach.Chat(ctx, sampleWalkthrough(), index, nil, "hi")
		assert.ErrorIs(t, err, ErrStepOutOfRange)
	}
	_, err := coach.Chat(ctx, sampleWalkthrough(), 0, nil, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestChatPropagatesModelError(t *testing.T) {
	coach := New(&llm.Static{Err: errors.New("overloaded")})
	_, err := coach.Chat(context.Background(), sampleWalkthrough(), 0, nil, "hi")
	assert.ErrorContains(t, err, "overloaded")
}

func TestRecentCapsHistory(t *testing.T) {
	var history []Turn
	for i := 0; i < 14; i++ {
		history = append(history, Turn{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}
	history = append(history, Turn{Role: "assistant", Content: " "})

	recent := Recent(history)
	require.Len(t, recent, MaxHistory)
	assert.Equal(t, "turn 4", recent[0].Content)
	assert.Equal(t, "turn 13", recent[MaxHistory-1].Content)

	prompt := Prompt(sampleWalkthrough(), 0, history, "next?")
	assert.NotContains(t, prompt, "turn 3\n")
	assert.Contains(t, prompt, "User: turn 13")
	assert.Contains(t, prompt, `Next step: Click "Remind"`)
}
