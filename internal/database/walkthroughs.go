package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vincentbai/stepcoach/internal/models"
)

const walkthroughColumns = `id, org_id, created_by, title, description, category, target_url,
	steps_json, metadata_json, status, shared_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWalkthrough(row rowScanner) (*models.Walkthrough, error) {
	var (
		walkthrough  models.Walkthrough
		stepsJSON    string
		metadataJSON string
		sharedAt     sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(&walkthrough.ID, &walkthrough.OrgID, &walkthrough.CreatedBy, &walkthrough.Title,
		&walkthrough.Description, &walkthrough.Category, &walkthrough.TargetURL,
		&stepsJSON, &metadataJSON, &walkthrough.Status, &sharedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("walkthrough: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan walkthrough: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &walkthrough.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &walkthrough.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if walkthrough.Steps == nil {
		walkthrough.Steps = []models.Step{}
	}
	if walkthrough.Metadata == nil {
		walkthrough.Metadata = map[string]any{}
	}
	walkthrough.SharedAt = nullableMillis(sharedAt)
	walkthrough.CreatedAt = fromMillis(createdAt)
	walkthrough.UpdatedAt = fromMillis(updatedAt)
	return &walkthrough, nil
}

func encodeJSON(value any, empty string) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func insertWalkthrough(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, walkthrough *models.Walkthrough) error {
	stepsJSON, err := encodeJSON(walkthrough.Steps, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	metadataJSON, err := encodeJSON(walkthrough.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = exec.ExecContext(ctx, `INSERT INTO walkthroughs(`+walkthroughColumns+`)
		VALUES(?,?,?,?,?,?,?,json(?),json(?),?,?,?,?)`,
		walkthrough.ID, walkthrough.OrgID, walkthrough.CreatedBy, walkthrough.Title, walkthrough.Description,
		walkthrough.Category, walkthrough.TargetURL, stepsJSON, metadataJSON, walkthrough.Status,
		nil, toMillis(walkthrough.CreatedAt), toMillis(walkthrough.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert walkthrough: %w", err)
	}
	return nil
}

// prepareWalkthrough fills defaults and validates before insert.
func (d *Database) prepareWalkthrough(walkthrough *models.Walkthrough) error {
	if walkthrough.OrgID == "" || walkthrough.CreatedBy == "" {
		return fmt.Errorf("%w: org and creator are required", ErrInvalid)
	}
	if err := d.ValidateSteps(walkthrough.Steps); err != nil {
		return err
	}
	if walkthrough.ID == "" {
		walkthrough.ID = newID()
	}
	if walkthrough.Status == "" {
		walkthrough.Status = models.StatusProcessing
	}
	if walkthrough.Steps == nil {
		walkthrough.Steps = []models.Step{}
	}
	if walkthrough.Metadata == nil {
		walkthrough.Metadata = map[string]any{}
	}
	models.Renumber(walkthrough.Steps)
	now := d.timestamp()
	walkthrough.CreatedAt = now
	walkthrough.UpdatedAt = now
	return nil
}

func (d *Database) CreateWalkthrough(ctx context.Context, walkthrough *models.Walkthrough) error {
	if err := d.prepareWalkthrough(walkthrough); err != nil {
		return err
	}
	return insertWalkthrough(ctx, d.db, walkthrough)
}

// GetWalkthrough loads a walkthrough regardless of organization. Callers
// acting on behalf of a user use GetOrgWalkthrough.
func (d *Database) GetWalkthrough(ctx context.Context, id string) (*models.Walkthrough, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+walkthroughColumns+` FROM walkthroughs WHERE id = ?`, id)
	return scanWalkthrough(row)
}

func (d *Database) GetOrgWalkthrough(ctx context.Context, orgID, id string) (*models.Walkthrough, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+walkthroughColumns+` FROM walkthroughs WHERE id = ? AND org_id = ?`, id, orgID)
	return scanWalkthrough(row)
}

type ListFilter struct {
	OrgID    string
	Status   string
	Category string
	Limit    int
	Offset   int
}

func (d *Database) ListWalkthroughs(ctx context.Context, filter ListFilter) ([]models.Walkthrough, error) {
	conditions := []string{"org_id = ?"}
	args := []any{filter.OrgID}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := d.db.QueryContext(ctx, `SELECT `+walkthroughColumns+` FROM walkthroughs
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list walkthroughs: %w", err)
	}
	defer rows.Close()

	walkthroughs := []models.Walkthrough{}
	for rows.Next() {
		walkthrough, err := scanWalkthrough(rows)
		if err != nil {
			return nil, err
		}
		walkthroughs = append(walkthroughs, *walkthrough)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate walkthroughs: %w", err)
	}
	return walkthroughs, nil
}

// MetadataUpdate carries optional edits to a walkthrough's descriptive fields.
type MetadataUpdate struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Category    *string        `json:"category"`
	TargetURL   *string        `json:"target_url"`
	Metadata    map[string]any `json:"metadata"` // merged key by key
}

func (u MetadataUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil && u.TargetURL == nil && len(u.Metadata) == 0
}

// mutate loads a walkthrough inside a transaction, applies fn and writes it back.
func (d *Database) mutate(ctx context.Context, orgID, id string, fn func(*models.Walkthrough) error) (*models.Walkthrough, error) {
	var result *models.Walkthrough
	err := d.withTx(ctx, func(transaction *sql.Tx) error {
		query := `SELECT ` + walkthroughColumns + ` FROM walkthroughs WHERE id = ?`
		args := []any{id}
		if orgID != "" {
			query += ` AND org_id = ?`
			args = append(args, orgID)
		}
		walkthrough, err := scanWalkthrough(transaction.QueryRowContext(ctx, query, args...))
		if err != nil {
			return err
		}
		if err := fn(walkthrough); err != nil {
			return err
		}
		walkthrough.UpdatedAt = d.timestamp()

		stepsJSON, err := encodeJSON(walkthrough.Steps, "[]")
		if err != nil {
			return fmt.Errorf("failed to marshal steps: %w", err)
		}
		metadataJSON, err := encodeJSON(walkthrough.Metadata, "{}")
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		var sharedAt any
		if walkthrough.SharedAt != nil {
			sharedAt = toMillis(*walkthrough.SharedAt)
		}
		_, err = transaction.ExecContext(ctx, `UPDATE walkthroughs SET title = ?, description = ?, category = ?,
			target_url = ?, steps_json = json(?), metadata_json = json(?), status = ?, shared_at = ?, updated_at = ?
			WHERE id = ?`,
			walkthrough.Title, walkthrough.Description, walkthrough.Category, walkthrough.TargetURL,
			stepsJSON, metadataJSON, walkthrough.Status, sharedAt, toMillis(walkthrough.UpdatedAt), walkthrough.ID)
		if err != nil {
			return fmt.Errorf("failed to update walkthrough: %w", err)
		}
		result = walkthrough
		return nil
	})
	return result, err
}

// UpdateWalkthrough edits descriptive fields. Shared walkthroughs refuse with ErrShared.
func (d *Database) UpdateWalkthrough(ctx context.Context, orgID, id string, update MetadataUpdate) (*models.Walkthrough, error) {
	return d.mutate(ctx, orgID, id, func(walkthrough *models.Walkthrough) error {
		if update.empty() {
			return nil
		}
		if walkthrough.IsShared() {
			return ErrShared
		}
		if update.Title != nil {
			walkthrough.Title = *update.Title
		}
		if update.Description != nil {
			walkthrough.Description = *update.Description
		}
		if update.Category != nil {
			walkthrough.Category = *update.Category
		}
		if update.TargetURL != nil {
			walkthrough.TargetURL = *update.TargetURL
		}
		for key, value := range update.Metadata {
			if value == nil {
				delete(walkthrough.Metadata, key)
				continue
			}
			walkthrough.Metadata[key] = value
		}
		return nil
	})
}

// ReplaceSteps swaps the full step list; order in the slice becomes the index.
func (d *Database) ReplaceSteps(ctx context.Context, orgID, id string, steps []models.Step) (*models.Walkthrough, error) {
	if err := d.ValidateSteps(steps); err != nil {
		return nil, err
	}
	replacement := make([]models.Step, len(steps))
	copy(replacement, steps)
	models.Renumber(replacement)
	return d.mutate(ctx, orgID, id, func(walkthrough *models.Walkthrough) error {
		walkthrough.Steps = replacement
		return nil
	})
}

// StepUpdate carries optional edits to a single step.
type StepUpdate struct {
	Instruction *string `json:"instruction"`
	Value       *string `json:"value"`
	Screenshot  *string `json:"screenshot"`
}

func (d *Database) UpdateStep(ctx context.Context, orgID, id string, index int, update StepUpdate) (*models.Walkthrough, error) {
	return d.mutate(ctx, orgID, id, func(walkthrough *models.Walkthrough) error {
		if index < 0 || index >= len(walkthrough.Steps) {
			return fmt.Errorf("step %d: %w", index, ErrNotFound)
		}
		step := &walkthrough.Steps[index]
		if update.Instruction != nil {
			step.Instruction = *update.Instruction
		}
		if update.Value != nil {
			step.Value = *update.Value
		}
		if update.Screenshot != nil {
			step.Screenshot = *update.Screenshot
		}
		return nil
	})
}

// CompleteProcessing copies the instructions of processed into the stored
// steps still lacking one, stores the summary and flips status to ready.
// processed must describe the same actions as the stored steps; when they
// were replaced in the meantime ErrChanged is returned and nothing is written.
func (d *Database) CompleteProcessing(ctx context.Context, id string, processed []models.Step, summary string) (*models.Walkthrough, error) {
	return d.mutate(ctx, "", id, func(walkthrough *models.Walkthrough) error {
		if !models.SameSteps(walkthrough.Steps, processed) {
			return ErrChanged
		}
		for position := range walkthrough.Steps {
			if walkthrough.Steps[position].Instruction == "" {
				walkthrough.Steps[position].Instruction = processed[position].Instruction
			}
		}
		if summary != "" {
			walkthrough.Metadata["summary"] = summary
			if walkthrough.Description == "" {
				walkthrough.Description = summary
			}
		}
		walkthrough.Status = models.StatusReady
		return nil
	})
}

func (d *Database) SetStatus(ctx context.Context, id, status string) error {
	if status != models.StatusProcessing && status != models.StatusReady {
		return fmt.Errorf("%w: status %q", ErrInvalid, status)
	}
	result, err := d.db.ExecContext(ctx, `UPDATE walkthroughs SET status = ?, updated_at = ? WHERE id = ?`,
		status, toMillis(d.now()), id)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return expectAffected(result, "walkthrough")
}

// MarkShared records the first share of a ready walkthrough. Sharing again is a no-op.
func (d *Database) MarkShared(ctx context.Context, orgID, id string) (*models.Walkthrough, error) {
	return d.mutate(ctx, orgID, id, func(walkthrough *models.Walkthrough) error {
		if walkthrough.Status != models.StatusReady {
			return ErrNotReady
		}
		if walkthrough.SharedAt == nil {
			now := d.timestamp()
			walkthrough.SharedAt = &now
		}
		return nil
	})
}

func (d *Database) DeleteWalkthrough(ctx context.Context, orgID, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM walkthroughs WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete walkthrough: %w", err)
	}
	return expectAffected(result, "walkthrough")
}

// ListStuck returns ids of walkthroughs still processing since before cutoff.
func (d *Database) ListStuck(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM walkthroughs WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		models.StatusProcessing, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck walkthroughs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Touch bumps updated_at so the sweeper does not pick a walkthrough up again right away.
func (d *Database) Touch(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE walkthroughs SET updated_at = ? WHERE id = ?`, toMillis(d.now()), id)
	if err != nil {
		return fmt.Errorf("failed to touch walkthrough: %w", err)
	}
	return nil
}

func expectAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
