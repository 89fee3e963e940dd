package storage

import (
	"context"
	"fmt"
)

// Stats summarizes the store's contents for the health/stats surface.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagrams`).Scan(&stats.DiagramCount); err != nil {
		return nil, fmt.Errorf("count diagrams: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagram_versions`).Scan(&stats.VersionCount); err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT project) FROM diagrams WHERE project != ''`).Scan(&stats.ProjectCount); err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}
	return &stats, nil
}
