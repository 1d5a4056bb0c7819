package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vincentbai/stepcoach/internal/models"
)

const sessionColumns = `id, org_id, user_id, target_url, status, steps_json, walkthrough_id, started_at, finished_at`

func scanSession(row rowScanner) (*models.RecordingSession, error) {
	var (
		session       models.RecordingSession
		stepsJSON     string
		walkthroughID sql.NullString
		startedAt     int64
		finishedAt    sql.NullInt64
	)
	err := row.Scan(&session.ID, &session.OrgID, &session.UserID, &session.TargetURL, &session.Status,
		&stepsJSON, &walkthroughID, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recording session: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &session.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	if session.Steps == nil {
		session.Steps = []models.Step{}
	}
	session.WalkthroughID = walkthroughID.String
	session.StartedAt = fromMillis(startedAt)
	session.FinishedAt = nullableMillis(finishedAt)
	return &session, nil
}

func (d *Database) StartSession(ctx context.Context, orgID, userID, targetURL string) (*models.RecordingSession, error) {
	if orgID == "" || userID == "" {
		return nil, fmt.Errorf("%w: org and user are required", ErrInvalid)
	}
	session := &models.RecordingSession{
		ID:        newID(),
		OrgID:     orgID,
		UserID:    userID,
		TargetURL: targetURL,
		Status:    models.SessionRecording,
		Steps:     []models.Step{},
		StartedAt: d.timestamp(),
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO recording_sessions(id, org_id, user_id, target_url, status, steps_json, started_at)
		VALUES(?,?,?,?,?,json('[]'),?)`,
		session.ID, session.OrgID, session.UserID, session.TargetURL, session.Status, toMillis(session.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert recording session: %w", err)
	}
	return session, nil
}

func (d *Database) GetSession(ctx context.Context, orgID, id string) (*models.RecordingSession, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM recording_sessions WHERE id = ? AND org_id = ?`, id, orgID)
	return scanSession(row)
}

// AppendSteps adds validated steps to an open session, continuing its numbering.
func (d *Database) AppendSteps(ctx context.Context, orgID, id string, steps []models.Step) (*models.RecordingSession, error) {
	if err := d.ValidateSteps(steps); err != nil {
		return nil, err
	}

	var session *models.RecordingSession
	err := d.withTx(ctx, func(transaction *sql.Tx) error {
		var err error
		session, err = scanSession(transaction.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM recording_sessions WHERE id = ? AND org_id = ?`, id, orgID))
		if err != nil {
			return err
		}
		if session.Status != models.SessionRecording {
			return ErrFinished
		}
		session.Steps = models.Continue(session.Steps, steps)

		stepsJSON, err := encodeJSON(session.Steps, "[]")
		if err != nil {
			return fmt.Errorf("failed to marshal steps: %w", err)
		}
		if _, err := transaction.ExecContext(ctx, `UPDATE recording_sessions SET steps_json = json(?) WHERE id = ?`,
			stepsJSON, session.ID); err != nil {
			return fmt.Errorf("failed to update recording session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// FinishSession closes an open session and creates its walkthrough (status
// processing) from the sequenced steps in one transaction.
func (d *Database) FinishSession(ctx context.Context, orgID, id string, walkthrough *models.Walkthrough) (*models.Walkthrough, error) {
	err := d.withTx(ctx, func(transaction *sql.Tx) error {
		session, err := scanSession(transaction.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM recording_sessions WHERE id = ? AND org_id = ?`, id, orgID))
		if err != nil {
			return err
		}
		if session.Status != models.SessionRecording {
			return ErrFinished
		}
		if len(session.Steps) == 0 {
			return ErrEmptySession
		}

		walkthrough.OrgID = session.OrgID
		walkthrough.CreatedBy = session.UserID
		walkthrough.Status = models.StatusProcessing
		walkthrough.Steps = models.Sequence(session.Steps)
		if walkthrough.TargetURL == "" {
			walkthrough.TargetURL = session.TargetURL
		}
		if walkthrough.TargetURL == "" {
			walkthrough.TargetURL = walkthrough.Steps[0].URL
		}
		if err := d.prepareWalkthrough(walkthrough); err != nil {
			return err
		}
		if err := insertWalkthrough(ctx, transaction, walkthrough); err != nil {
			return err
		}

		_, err = transaction.ExecContext(ctx, `UPDATE recording_sessions SET status = ?, walkthrough_id = ?, finished_at = ? WHERE id = ?`,
			models.SessionFinished, walkthrough.ID, toMillis(d.now()), session.ID)
		if err != nil {
			return fmt.Errorf("failed to finish recording session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return walkthrough, nil
}
