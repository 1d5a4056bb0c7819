package models

import "time"

const (
	StepClick    = "click"
	StepInput    = "input"
	StepChange   = "change"
	StepNavigate = "navigate"
)

const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
)

// Element is the fingerprint of the DOM node a step acted on.
type Element struct {
	Tag         string   `json:"tag"`
	ID          string   `json:"id,omitempty"`
	Classes     []string `json:"classes,omitempty"`
	Text        string   `json:"text,omitempty"`
	AriaLabel   string   `json:"ariaLabel,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type,omitempty"`
	XPath       string   `json:"xpath"`
}

type Step struct {
	Index       int      `json:"index"`
	Type        string   `json:"type"` // click|input|change|navigate
	Timestamp   int64    `json:"timestamp"`
	ElapsedMS   int64    `json:"elapsed_ms"`
	URL         string   `json:"url"`
	PageTitle   string   `json:"page_title"`
	Element     *Element `json:"element,omitempty"` // nil for navigate
	Value       string   `json:"value,omitempty"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	ScrollX     float64  `json:"scroll_x"`
	ScrollY     float64  `json:"scroll_y"`
	Screenshot  string   `json:"screenshot,omitempty"` // data URL on upload, /screenshots/<key> once stored
	Instruction string   `json:"instruction,omitempty"`
}

type Walkthrough struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	CreatedBy   string         `json:"created_by"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	TargetURL   string         `json:"target_url"`
	Steps       []Step         `json:"steps"`
	Metadata    map[string]any `json:"metadata"`
	Status      string         `json:"status"` // processing|ready
	SharedAt    *time.Time     `json:"shared_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsShared reports whether a share token has been minted for the walkthrough.
func (w *Walkthrough) IsShared() bool {
	return w.SharedAt != nil
}

// Summary returns metadata.summary when it is a string.
func (w *Walkthrough) Summary() string {
	if w.Metadata == nil {
		return ""
	}
	summary, _ := w.Metadata["summary"].(string)
	return summary
}

// Batch is the upload body the recorder sends when it flushes buffered steps.
type Batch struct {
	Steps []Step `json:"steps"`
}

const (
	SessionRecording = "recording"
	SessionFinished  = "finished"
)

// RecordingSession is the background coordinator's state for one capture run.
type RecordingSession struct {
	ID            string     `json:"id"`
	OrgID         string     `json:"org_id"`
	UserID        string     `json:"user_id"`
	TargetURL     string     `json:"target_url"`
	Status        string     `json:"status"` // recording|finished
	Steps         []Step     `json:"steps"`
	WalkthroughID string     `json:"walkthrough_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

const (
	PlaybackStart    = "start"
	PlaybackStep     = "step"
	PlaybackComplete = "complete"
	PlaybackExit     = "exit"
)

// PlaybackEvent is reported by the training widget as a user moves through a walkthrough.
type PlaybackEvent struct {
	WalkthroughID string    `json:"walkthrough_id"`
	OrgID         string    `json:"org_id"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	StepIndex     int       `json:"step_index"`
	Kind          string    `json:"kind"` // start|step|complete|exit
	CreatedAt     time.Time `json:"created_at"`
}

type WalkthroughStats struct {
	WalkthroughID  string  `json:"walkthrough_id"`
	Title          string  `json:"title"`
	Views          int     `json:"views"`
	Completions    int     `json:"completions"`
	CompletionRate float64 `json:"completion_rate"`
	FurthestStep   int     `json:"furthest_step"` // -1 when never played
	// AverageFurthestStep is the mean over playback sessions of the furthest
	// step each one reached; -1 when never played.
	AverageFurthestStep float64 `json:"average_furthest_step"`
}

type Analytics struct {
	Total          int                `json:"total"`
	Processing     int                `json:"processing"`
	Ready          int                `json:"ready"`
	Views          int                `json:"views"`
	Completions    int                `json:"completions"`
	CompletionRate float64            `json:"completion_rate"`
	Walkthroughs   []WalkthroughStats `json:"walkthroughs"`
}
