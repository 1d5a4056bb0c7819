package database

import (
	"context"
	"fmt"

	"github.com/vincentbai/stepcoach/internal/models"
)

var validPlaybackKinds = map[string]bool{
	models.PlaybackStart:    true,
	models.PlaybackStep:     true,
	models.PlaybackComplete: true,
	models.PlaybackExit:     true,
}

func (d *Database) RecordPlayback(ctx context.Context, event models.PlaybackEvent) error {
	if !validPlaybackKinds[event.Kind] {
		return fmt.Errorf("%w: playback kind %q", ErrInvalid, event.Kind)
	}
	if event.StepIndex < 0 {
		return fmt.Errorf("%w: step index must not be negative", ErrInvalid)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now()
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO playback_events(walkthrough_id, org_id, user_id, session_id, step_index, kind, created_at)
		VALUES(?,?,?,?,?,?,?)`,
		event.WalkthroughID, event.OrgID, event.UserID, event.SessionID, event.StepIndex, event.Kind, toMillis(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record playback event: %w", err)
	}
	return nil
}

// Analytics aggregates walkthrough counts and playback funnels for an organization.
func (d *Database) Analytics(ctx context.Context, orgID string) (*models.Analytics, error) {
	analytics := &models.Analytics{Walkthroughs: []models.WalkthroughStats{}}

	err := d.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'ready' THEN 1 ELSE 0 END), 0)
		FROM walkthroughs WHERE org_id = ?`, orgID).Scan(&analytics.Total, &analytics.Processing, &analytics.Ready)
	if err != nil {
		return nil, fmt.Errorf("failed to count walkthroughs: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `WITH reached AS (
			SELECT walkthrough_id, AVG(furthest) AS average
			FROM (
				SELECT walkthrough_id, session_id, MAX(step_index) AS furthest
				FROM playback_events WHERE org_id = ?
				GROUP BY walkthrough_id, session_id
			)
			GROUP BY walkthrough_id
		)
		SELECT w.id, w.title,
			COALESCE(SUM(CASE WHEN p.kind = 'start' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN p.kind = 'complete' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(p.step_index), -1),
			COALESCE(r.average, -1)
		FROM walkthroughs w
		LEFT JOIN playback_events p ON p.walkthrough_id = w.id
		LEFT JOIN reached r ON r.walkthrough_id = w.id
		WHERE w.org_id = ?
		GROUP BY w.id, w.title, r.average
		ORDER BY w.created_at DESC, w.id DESC`, orgID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate playback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stats models.WalkthroughStats
		if err := rows.Scan(&stats.WalkthroughID, &stats.Title, &stats.Views, &stats.Completions, &stats.FurthestStep, &stats.AverageFurthestStep); err != nil {
			return nil, fmt.Errorf("failed to scan playback stats: %w", err)
		}
		stats.CompletionRate = models.Rate(stats.Completions, stats.Views)
		analytics.Views += stats.Views
		analytics.Completions += stats.Completions
		analytics.Walkthroughs = append(analytics.Walkthroughs, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playback stats: %w", err)
	}
	analytics.CompletionRate = models.Rate(analytics.Completions, analytics.Views)
	return analytics, nil
}
