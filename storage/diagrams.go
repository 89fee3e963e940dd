package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/google/uuid"
)

// Create inserts a new diagram at version 1, enforcing the owner's diagram
// count quota and the spec's size/collection caps before the INSERT.
func (s *SQLite) Create(ctx context.Context, name, project string, spec *diagramspec.Spec, opts CreateOptions) (*Diagram, error) {
	return s.createWithMessage(ctx, name, project, spec, opts, "Initial version")
}

// createWithMessage is Create's implementation, parameterized on the first
// history row's message so Fork can record its own provenance note instead
// of the default "Initial version".
func (s *SQLite) createWithMessage(ctx context.Context, name, project string, spec *diagramspec.Spec, opts CreateOptions, message string) (*Diagram, error) {
	raw, err := diagramspec.Serialize(spec)
	if err != nil {
		return nil, fmt.Errorf("serialize spec: %w", err)
	}
	if s.guard != nil {
		if err := s.guard.CheckSpec(raw, spec); err != nil {
			return nil, err
		}
		if opts.OwnerID != "" {
			count, err := s.ownerDiagramCount(ctx, opts.OwnerID)
			if err != nil {
				return nil, err
			}
			if err := s.guard.CheckOwnerCount(opts.OwnerID, count); err != nil {
				return nil, err
			}
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	var ownerID sql.NullString
	if opts.OwnerID != "" {
		ownerID = sql.NullString{String: opts.OwnerID, Valid: true}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO diagrams (id, name, project, spec, version, owner_id, is_public, shares, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?, '[]', ?, ?)
		`, id, name, project, string(raw), ownerID, boolToInt(opts.IsPublic), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert diagram: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
			VALUES (?, ?, 1, ?, ?, ?)
		`, uuid.NewString(), id, string(raw), message, now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert initial version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Get fetches a single diagram by id, or (nil, nil) if it does not exist.
func (s *SQLite) Get(ctx context.Context, id string) (*Diagram, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, project, spec, version, owner_id, is_public, shares, created_at, updated_at
		FROM diagrams WHERE id = ?
	`, id)
	d, err := scanDiagram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Update performs an optimistic-concurrency write: it only succeeds if
// baseVersion (when non-nil) matches the row's current version.
func (s *SQLite) Update(ctx context.Context, id string, spec *diagramspec.Spec, message string, baseVersion *int64) (*Diagram, *Conflict, error) {
	raw, err := diagramspec.Serialize(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize spec: %w", err)
	}
	if s.guard != nil {
		if err := s.guard.CheckSpec(raw, spec); err != nil {
			return nil, nil, err
		}
	}

	var conflict *Conflict
	var notFound bool
	now := time.Now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var currentVersion int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM diagrams WHERE id = ?`, id).Scan(&currentVersion)
		if errors.Is(err, sql.ErrNoRows) {
			notFound = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("read current version: %w", err)
		}

		if baseVersion != nil && *baseVersion != currentVersion {
			conflict = &Conflict{CurrentVersion: currentVersion}
			return nil
		}

		newVersion := currentVersion + 1
		res, err := tx.ExecContext(ctx, `
			UPDATE diagrams SET spec = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?
		`, string(raw), newVersion, now.Format(time.RFC3339Nano), id, currentVersion)
		if err != nil {
			return fmt.Errorf("update diagram: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Another writer won the race between our read and this write.
			conflict = &Conflict{CurrentVersion: currentVersion}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), id, newVersion, string(raw), message, now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if notFound {
		return nil, nil, nil
	}
	if conflict != nil {
		return nil, conflict, nil
	}

	d, err := s.Get(ctx, id)
	return d, nil, err
}

// ForceUpdate writes spec regardless of the current version, bumping the
// version counter by one. Used by RestoreVersion and administrative repair.
func (s *SQLite) ForceUpdate(ctx context.Context, id string, spec *diagramspec.Spec, message string) (*Diagram, error) {
	raw, err := diagramspec.Serialize(spec)
	if err != nil {
		return nil, fmt.Errorf("serialize spec: %w", err)
	}
	if s.guard != nil {
		if err := s.guard.CheckSpec(raw, spec); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	var notFound bool

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var currentVersion int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM diagrams WHERE id = ?`, id).Scan(&currentVersion)
		if errors.Is(err, sql.ErrNoRows) {
			notFound = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("read current version: %w", err)
		}

		newVersion := currentVersion + 1
		_, err = tx.ExecContext(ctx, `
			UPDATE diagrams SET spec = ?, version = ?, updated_at = ? WHERE id = ?
		`, string(raw), newVersion, now.Format(time.RFC3339Nano), id)
		if err != nil {
			return fmt.Errorf("force update diagram: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), id, newVersion, string(raw), message, now.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, nil
	}
	return s.Get(ctx, id)
}

// Transform re-reads the diagram, applies fn, and writes the result back
// under an optimistic check, retrying on conflict up to maxRetries times.
func (s *SQLite) Transform(ctx context.Context, id string, fn func(*diagramspec.Spec) (*diagramspec.Spec, error), message string, maxRetries int) (*Diagram, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}

		next, err := fn(current.Spec)
		if err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}

		base := current.Version
		updated, conflict, err := s.Update(ctx, id, next, message, &base)
		if err != nil {
			return nil, err
		}
		if conflict == nil {
			return updated, nil
		}
	}
	return nil, &MaxRetriesExceededError{Attempts: maxRetries}
}

// Delete removes a diagram and, via ON DELETE CASCADE, its version history
// and agent runs. Returns false if the id did not exist.
func (s *SQLite) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete diagram: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns every diagram in project (or all projects if empty), ordered
// by most recently updated first. Unbounded; callers needing pagination use
// ListPaginated.
func (s *SQLite) List(ctx context.Context, project string) ([]Diagram, error) {
	var rows *sql.Rows
	var err error
	if project == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, project, spec, version, owner_id, is_public, shares, created_at, updated_at
			FROM diagrams ORDER BY updated_at DESC
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, project, spec, version, owner_id, is_public, shares, created_at, updated_at
			FROM diagrams WHERE project = ? ORDER BY updated_at DESC
		`, project)
	}
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer rows.Close()
	return scanDiagrams(rows)
}

func (s *SQLite) ownerDiagramCount(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagrams WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owner diagrams: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
