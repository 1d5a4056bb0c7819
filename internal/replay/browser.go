package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/models"
)

type Options struct {
	// RemoteURL is a DevTools websocket of a running Chrome. Empty launches a local one.
	RemoteURL         string
	Headless          bool
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	// Interact performs clicks, typing and selection so later steps see the
	// page state the recording saw. Password fields are never typed into.
	Interact bool
}

func DefaultOptions() Options {
	return Options{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    5 * time.Second,
		Interact:          true,
	}
}

// Verify replays walkthrough in a real browser and reports which step
// elements could be located by their recorded xpath.
func Verify(ctx context.Context, walkthrough *models.Walkthrough, opts Options) (*Report, error) {
	browser, cleanup, err := connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("replay: create tab: %w", err)
	}
	defer page.Close()

	start := walkthrough.TargetURL
	if start == "" && len(walkthrough.Steps) > 0 {
		start = walkthrough.Steps[0].URL
	}
	if start == "" {
		return nil, fmt.Errorf("replay: walkthrough %s has no url to start from", walkthrough.ID)
	}
	if err := navigate(ctx, page, start, opts.NavigationTimeout); err != nil {
		return nil, err
	}

	report := newReport(walkthrough)
	for _, step := range walkthrough.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := Result{Index: step.Index, Type: step.Type, XPath: stepXPath(step)}

		if step.Type == models.StepNavigate {
			if err := navigate(ctx, page, step.URL, opts.NavigationTimeout); err != nil {
				result.Error = err.Error()
			} else {
				result.Found = true
			}
			report.add(result)
			continue
		}
		if result.XPath == "" {
			result.Error = "step has no xpath"
			report.add(result)
			continue
		}

		element, err := page.Context(ctx).Timeout(opts.ElementTimeout).ElementX(result.XPath)
		if err != nil {
			result.Error = "element not found"
			report.add(result)
			continue
		}
		element = element.CancelTimeout()

		if node, err := element.Describe(0, false); err == nil && !tagMatches(step.Element.Tag, strings.ToLower(node.NodeName)) {
			result.Error = fmt.Sprintf("expected <%s>, found <%s>", strings.ToLower(step.Element.Tag), strings.ToLower(node.NodeName))
			report.add(result)
			continue
		}
		result.Found = true

		if opts.Interact {
			if err := interact(element, step); err != nil {
				result.Error = err.Error()
			}
		}
		report.add(result)
	}

	logging.Infof("replayed walkthrough %s: %d found, %d missing", walkthrough.ID, report.Found, report.Missing)
	return report, nil
}

func connect(ctx context.Context, opts Options) (*rod.Browser, func(), error) {
	controlURL := opts.RemoteURL
	var local *launcher.Launcher
	if controlURL == "" {
		local = launcher.New().Headless(opts.Headless)
		launched, err := local.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("replay: launch browser: %w", err)
		}
		controlURL = launched
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if local != nil {
			local.Kill()
		}
		return nil, nil, fmt.Errorf("replay: connect: %w", err)
	}

	cleanup := func() {
		if err := browser.Close(); err != nil {
			logging.Debugf("replay: close browser: %v", err)
		}
		if local != nil {
			local.Cleanup()
		}
	}
	return browser, cleanup, nil
}

func navigate(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error {
	navigationCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navigationCtx).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Context(navigationCtx).WaitLoad(); err != nil {
		logging.Warnf("replay: wait load %s: %v", url, err)
	}
	return nil
}

func interact(element *rod.Element, step models.Step) error {
	switch step.Type {
	case models.StepClick:
		return element.Click(proto.InputMouseButtonLeft, 1)
	case models.StepInput:
		if strings.EqualFold(step.Element.Type, "password") {
			return nil
		}
		return element.Input(step.Value)
	case models.StepChange:
		if step.Value == "" {
			return nil
		}
		return element.Select([]string{step.Value}, true, rod.SelectorTypeText)
	}
	return nil
}
