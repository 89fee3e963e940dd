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

// CreateVersion snapshots spec as a new version row without touching the
// diagrams table itself. Update/ForceUpdate call this internally; it is
// also exposed for callers (e.g. an agent run) that manage the diagram row
// separately.
func (s *SQLite) CreateVersion(ctx context.Context, diagramID string, spec *diagramspec.Spec, message string) (*Version, error) {
	raw, err := diagramspec.Serialize(spec)
	if err != nil {
		return nil, fmt.Errorf("serialize spec: %w", err)
	}

	var nextVersion int64
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM diagram_versions WHERE diagram_id = ?`, diagramID).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("compute next version: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, diagramID, nextVersion, string(raw), message, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	return &Version{ID: id, DiagramID: diagramID, Version: nextVersion, Spec: spec, Message: message, CreatedAt: now}, nil
}

// GetVersions returns the full, spec-included history for a diagram, oldest
// first.
func (s *SQLite) GetVersions(ctx context.Context, diagramID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, diagram_id, version, spec, message, created_at
		FROM diagram_versions WHERE diagram_id = ? ORDER BY version ASC
	`, diagramID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()
	return scanVersions(rows, true)
}

// GetVersionsPaginated returns one page of history, newest first, plus the
// total version count.
func (s *SQLite) GetVersionsPaginated(ctx context.Context, diagramID string, limit, offset int) ([]Version, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagram_versions WHERE diagram_id = ?`, diagramID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count versions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, diagram_id, version, spec, message, created_at
		FROM diagram_versions WHERE diagram_id = ? ORDER BY version DESC LIMIT ? OFFSET ?
	`, diagramID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list versions page: %w", err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows, true)
	if err != nil {
		return nil, 0, err
	}
	return versions, total, nil
}

// GetVersionsMetadata returns history rows without decoding the (possibly
// large) stored spec, for lightweight listing.
func (s *SQLite) GetVersionsMetadata(ctx context.Context, diagramID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, diagram_id, version, message, created_at
		FROM diagram_versions WHERE diagram_id = ? ORDER BY version DESC
	`, diagramID)
	if err != nil {
		return nil, fmt.Errorf("list version metadata: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var message sql.NullString
		var createdAt string
		if err := rows.Scan(&v.ID, &v.DiagramID, &v.Version, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan version metadata: %w", err)
		}
		v.Message = message.String
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		v.CreatedAt = ts
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersion fetches a single historical version, or nil if it does not
// exist.
func (s *SQLite) GetVersion(ctx context.Context, diagramID string, version int64) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, diagram_id, version, spec, message, created_at
		FROM diagram_versions WHERE diagram_id = ? AND version = ?
	`, diagramID, version)
	v, err := scanVersion(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetLatestVersion fetches the most recent history row for a diagram.
func (s *SQLite) GetLatestVersion(ctx context.Context, diagramID string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, diagram_id, version, spec, message, created_at
		FROM diagram_versions WHERE diagram_id = ? ORDER BY version DESC LIMIT 1
	`, diagramID)
	v, err := scanVersion(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// RestoreVersion force-writes a historical spec back onto the live diagram,
// creating a fresh version on top rather than rewinding history.
func (s *SQLite) RestoreVersion(ctx context.Context, diagramID string, version int64) (*Diagram, error) {
	v, err := s.GetVersion(ctx, diagramID, version)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return s.ForceUpdate(ctx, diagramID, v.Spec, fmt.Sprintf("Restored to version %d", version))
}

// Fork copies a diagram's current spec into a brand new, ownerless,
// private diagram with its own id and fresh version history.
func (s *SQLite) Fork(ctx context.Context, id, newName, project string) (*Diagram, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	if newName == "" {
		newName = d.Name + " (copy)"
	}
	if project == "" {
		project = d.Project
	}
	return s.createWithMessage(ctx, newName, project, d.Spec, CreateOptions{}, fmt.Sprintf("Forked from %s (%s)", d.Name, d.ID))
}

func scanVersion(row scannable, withSpec bool) (*Version, error) {
	var (
		id, diagramID, createdAt string
		version                  int64
		specJSON                 string
		message                  sql.NullString
	)
	if err := row.Scan(&id, &diagramID, &version, &specJSON, &message, &createdAt); err != nil {
		return nil, err
	}

	var spec *diagramspec.Spec
	if withSpec {
		s, err := diagramspec.ParseLenient([]byte(specJSON))
		if err != nil {
			return nil, fmt.Errorf("decode stored version spec for %s/%d: %w", diagramID, version, err)
		}
		spec = s
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &Version{ID: id, DiagramID: diagramID, Version: version, Spec: spec, Message: message.String, CreatedAt: ts}, nil
}

func scanVersions(rows *sql.Rows, withSpec bool) ([]Version, error) {
	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows, withSpec)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
