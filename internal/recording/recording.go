// Package recording is the server half of the extension's background
// coordinator: it owns capture sessions, stores screenshots as they arrive
// and turns a finished session into a walkthrough queued for processing.
package recording

import (
	"context"
	"fmt"
	"strings"

	"github.com/vincentbai/stepcoach/internal/blobstore"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/models"
)

// Enqueuer accepts walkthrough ids for background processing.
type Enqueuer interface {
	Enqueue(walkthroughID string) bool
}

type Recorder struct {
	db    *database.Database
	blobs *blobstore.Store
	queue Enqueuer
}

func New(db *database.Database, blobs *blobstore.Store, queue Enqueuer) *Recorder {
	return &Recorder{db: db, blobs: blobs, queue: queue}
}

func (r *Recorder) Start(ctx context.Context, orgID, userID, targetURL string) (*models.RecordingSession, error) {
	session, err := r.db.StartSession(ctx, orgID, userID, strings.TrimSpace(targetURL))
	if err != nil {
		return nil, err
	}
	logging.Infof("recording session %s started by %s", session.ID, userID)
	return session, nil
}

// Append stores inline screenshots then adds the steps to the session.
func (r *Recorder) Append(ctx context.Context, orgID, sessionID string, steps []models.Step) (*models.RecordingSession, error) {
	prepared := make([]models.Step, len(steps))
	for position, step := range steps {
		stored, err := r.StoreScreenshot(step.Screenshot)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", position, err)
		}
		step.Screenshot = stored
		prepared[position] = step
	}
	return r.db.AppendSteps(ctx, orgID, sessionID, prepared)
}

// StoreScreenshot turns a data URL into a stored reference. Empty input and
// references that are already stored pass through.
func (r *Recorder) StoreScreenshot(screenshot string) (string, error) {
	if screenshot == "" {
		return "", nil
	}
	if _, ok := blobstore.KeyFromRef(screenshot); ok {
		return screenshot, nil
	}
	if !blobstore.IsDataURL(screenshot) {
		return "", fmt.Errorf("%w: screenshot must be an image data URL", database.ErrInvalid)
	}
	data, _, extension, err := blobstore.DecodeDataURL(screenshot)
	if err != nil {
		return "", fmt.Errorf("%w: screenshot: %w", database.ErrInvalid, err)
	}
	key, err := r.blobs.Put(data, extension)
	if err != nil {
		return "", err
	}
	return blobstore.Ref(key), nil
}

// FinishRequest carries the details the user enters when stopping a recording.
type FinishRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TargetURL   string `json:"target_url"`
}

func (r *Recorder) Finish(ctx context.Context, orgID, sessionID string, request FinishRequest) (*models.Walkthrough, error) {
	title := strings.TrimSpace(request.Title)
	if title == "" {
		title = "Untitled walkthrough"
	}
	walkthrough, err := r.db.FinishSession(ctx, orgID, sessionID, &models.Walkthrough{
		Title:       title,
		Description: strings.TrimSpace(request.Description),
		Category:    strings.TrimSpace(request.Category),
		TargetURL:   strings.TrimSpace(request.TargetURL),
	})
	if err != nil {
		return nil, err
	}
	logging.Infof("recording session %s finished as walkthrough %s with %d steps", sessionID, walkthrough.ID, len(walkthrough.Steps))

	if r.queue != nil && !r.queue.Enqueue(walkthrough.ID) {
		// The sweeper picks it up later.
		logging.Warnf("processing queue full, walkthrough %s deferred", walkthrough.ID)
	}
	return walkthrough, nil
}
