package processor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vincentbai/stepcoach/internal/models"
	"github.com/vincentbai/stepcoach/internal/xpath"
)

const instructionSystemPrompt = `You write instructions for interactive software walkthroughs.
Given one recorded user action, reply with a single short imperative sentence telling a new user what to do.
Put the visible name of the control in **bold**. Do not number the step, do not add quotes, do not explain.`

const summarySystemPrompt = `You summarize software walkthroughs for a library of training guides.
Reply with one or two plain sentences describing what the walkthrough teaches. No lists, no quotes.`

// InstructionPrompt describes a step for the model. Password values never leave the server.
func InstructionPrompt(step models.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", step.Type)
	if step.PageTitle != "" {
		fmt.Fprintf(&b, "Page title: %s\n", step.PageTitle)
	}
	fmt.Fprintf(&b, "Page URL: %s\n", step.URL)

	if element := step.Element; element != nil {
		fmt.Fprintf(&b, "Element: <%s>\n", element.Tag)
		writeField(&b, "Text", element.Text)
		writeField(&b, "Aria label", element.AriaLabel)
		writeField(&b, "Placeholder", element.Placeholder)
		writeField(&b, "Name", element.Name)
		writeField(&b, "Id", element.ID)
		writeField(&b, "Input type", element.Type)
		if len(element.Classes) > 0 {
			writeField(&b, "Classes", strings.Join(element.Classes, " "))
		}
	}

	switch {
	case step.Type != models.StepInput && step.Type != models.StepChange:
	case isSecret(step):
		b.WriteString("Value: (hidden)\n")
	case step.Value != "":
		fmt.Fprintf(&b, "Value: %s\n", xpath.Truncate(step.Value, 200))
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func isSecret(step models.Step) bool {
	return step.Element != nil && strings.EqualFold(step.Element.Type, "password")
}

// FallbackInstruction builds an instruction from element metadata alone.
func FallbackInstruction(step models.Step) string {
	label := elementLabel(step.Element)
	switch step.Type {
	case models.StepNavigate:
		if step.PageTitle != "" {
			return fmt.Sprintf("Navigate to %s", step.PageTitle)
		}
		return fmt.Sprintf("Navigate to %s", displayURL(step.URL))
	case models.StepInput:
		switch {
		case isSecret(step):
			return fmt.Sprintf("Type your password into %s", label)
		case step.Value == "":
			return fmt.Sprintf("Clear %s", label)
		}
		return fmt.Sprintf("Type %q into %s", xpath.Truncate(step.Value, 80), label)
	case models.StepChange:
		if step.Value != "" && !isSecret(step) {
			return fmt.Sprintf("Select %q in %s", xpath.Truncate(step.Value, 80), label)
		}
		return fmt.Sprintf("Change %s", label)
	default:
		return fmt.Sprintf("Click %q", label)
	}
}

// elementLabel picks the most human name the element offers.
func elementLabel(element *models.Element) string {
	if element == nil {
		return "the highlighted element"
	}
	for _, candidate := range []string{element.AriaLabel, element.Text, element.Placeholder, element.Name, element.ID} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return xpath.Truncate(candidate, 60)
		}
	}
	if element.Tag != "" {
		return "the " + element.Tag + " element"
	}
	return "the highlighted element"
}

func displayURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host + strings.TrimSuffix(parsed.Path, "/")
}

// FallbackSummary is used when the model cannot summarize.
func FallbackSummary(walkthrough *models.Walkthrough) string {
	count := len(walkthrough.Steps)
	noun := "steps"
	if count == 1 {
		noun = "step"
	}
	if host := displayURL(walkthrough.TargetURL); host != "" {
		return fmt.Sprintf("%s in %d %s on %s.", walkthrough.Title, count, noun, host)
	}
	return fmt.Sprintf("%s in %d %s.", walkthrough.Title, count, noun)
}

func summaryPrompt(walkthrough *models.Walkthrough) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", walkthrough.Title)
	if walkthrough.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", walkthrough.Category)
	}
	if walkthrough.TargetURL != "" {
		fmt.Fprintf(&b, "Application: %s\n", walkthrough.TargetURL)
	}
	b.WriteString("Steps:\n")
	for _, step := range walkthrough.Steps {
		instruction := step.Instruction
		if instruction == "" {
			instruction = FallbackInstruction(step)
		}
		fmt.Fprintf(&b, "%d. %s\n", step.Index+1, instruction)
	}
	return b.String()
}
