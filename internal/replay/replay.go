// Package replay checks that a recorded walkthrough still matches the
// application it was recorded against.
package replay

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/vincentbai/stepcoach/internal/models"
	"github.com/vincentbai/stepcoach/internal/xpath"
)

// Result is the outcome for one step.
type Result struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	XPath string `json:"xpath,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

type Report struct {
	WalkthroughID string   `json:"walkthrough_id"`
	Results       []Result `json:"results"`
	Found         int      `json:"found"`
	Missing       int      `json:"missing"`
}

func (r *Report) add(result Result) {
	r.Results = append(r.Results, result)
	if result.Found {
		r.Found++
	} else {
		r.Missing++
	}
}

// OK reports whether every step resolved.
func (r *Report) OK() bool {
	return r.Missing == 0
}

func newReport(walkthrough *models.Walkthrough) *Report {
	return &Report{WalkthroughID: walkthrough.ID, Results: make([]Result, 0, len(walkthrough.Steps))}
}

func stepXPath(step models.Step) string {
	if step.Element == nil {
		return ""
	}
	return step.Element.XPath
}

// VerifySnapshot checks every step against one saved HTML document. Navigate
// steps always pass since a snapshot has a single URL.
func VerifySnapshot(walkthrough *models.Walkthrough, root *html.Node) *Report {
	report := newReport(walkthrough)
	for _, step := range walkthrough.Steps {
		result := Result{Index: step.Index, Type: step.Type, XPath: stepXPath(step)}
		switch {
		case step.Type == models.StepNavigate:
			result.Found = true
		case result.XPath == "":
			result.Error = "step has no xpath"
		default:
			node := xpath.Resolve(root, result.XPath)
			switch {
			case node == nil:
				result.Error = "element not found"
			case !tagMatches(step.Element.Tag, node.Data):
				result.Error = fmt.Sprintf("expected <%s>, found <%s>", strings.ToLower(step.Element.Tag), node.Data)
			default:
				result.Found = true
			}
		}
		report.add(result)
	}
	return report
}

func tagMatches(recorded, actual string) bool {
	return recorded == "" || strings.EqualFold(recorded, actual)
}
