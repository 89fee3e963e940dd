package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evalgo-org/diagramhub/diagramspec"
)

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanDiagram(row scannable) (*Diagram, error) {
	var (
		id, name, project, specJSON, sharesJSON, createdAt, updatedAt string
		version                                                      int64
		ownerID                                                      sql.NullString
		isPublic                                                     int
	)
	if err := row.Scan(&id, &name, &project, &specJSON, &version, &ownerID, &isPublic, &sharesJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	spec, err := diagramspec.ParseLenient([]byte(specJSON))
	if err != nil {
		return nil, fmt.Errorf("decode stored spec for %s: %w", id, err)
	}

	var shares []Share
	if err := json.Unmarshal([]byte(sharesJSON), &shares); err != nil {
		return nil, fmt.Errorf("decode stored shares for %s: %w", id, err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", id, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", id, err)
	}

	d := &Diagram{
		ID:        id,
		Name:      name,
		Project:   project,
		Spec:      spec,
		Version:   version,
		IsPublic:  isPublic != 0,
		Shares:    shares,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if ownerID.Valid {
		d.OwnerID = &ownerID.String
	}
	return d, nil
}

func scanDiagrams(rows *sql.Rows) ([]Diagram, error) {
	var out []Diagram
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagrams: %w", err)
	}
	return out, nil
}
