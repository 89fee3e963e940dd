package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ftsMinQueryLen is the shortest search term that gets routed through FTS5;
// anything shorter falls back to a plain LIKE scan since FTS5 tokenizers
// generally ignore 1-2 character terms.
const ftsMinQueryLen = 3

var sortColumns = map[SortField]string{
	SortUpdatedAt: "updated_at",
	SortCreatedAt: "created_at",
	SortName:      "name COLLATE NOCASE",
}

// ListPaginated applies project/type/date/search filters, then returns one
// page of results plus the total matching row count.
func (s *SQLite) ListPaginated(ctx context.Context, filter ListFilter) (*ListResult, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if filter.CreatedBefore != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if filter.UpdatedAfter != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, filter.UpdatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if filter.UpdatedBefore != nil {
		where = append(where, "updated_at <= ?")
		args = append(args, filter.UpdatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, fmt.Sprintf("json_extract(spec, '$.type') IN (%s)", strings.Join(placeholders, ",")))
	}

	fromClause := "diagrams"
	if len(strings.TrimSpace(filter.Search)) >= ftsMinQueryLen {
		fromClause = "diagrams JOIN diagrams_fts ON diagrams_fts.id = diagrams.id"
		where = append(where, "diagrams_fts MATCH ?")
		args = append(args, ftsQuery(filter.Search))
	} else if filter.Search != "" {
		where = append(where, "(name LIKE ? ESCAPE '\\' OR project LIKE ? ESCAPE '\\')")
		like := "%" + escapeLike(filter.Search) + "%"
		args = append(args, like, like)
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", fromClause, whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count filtered diagrams: %w", err)
	}

	sortCol, ok := sortColumns[filter.SortBy]
	if !ok {
		sortCol = sortColumns[SortUpdatedAt]
	}
	order := "DESC"
	if filter.SortOrder == SortAsc {
		order = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	selectQuery := fmt.Sprintf(`
		SELECT diagrams.id, diagrams.name, diagrams.project, diagrams.spec, diagrams.version,
		       diagrams.owner_id, diagrams.is_public, diagrams.shares, diagrams.created_at, diagrams.updated_at
		FROM %s WHERE %s ORDER BY diagrams.%s %s LIMIT ? OFFSET ?
	`, fromClause, whereClause, sortCol, order)
	rows, err := s.db.QueryContext(ctx, selectQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list filtered diagrams: %w", err)
	}
	defer rows.Close()

	data, err := scanDiagrams(rows)
	if err != nil {
		return nil, err
	}
	return &ListResult{Data: data, Total: total}, nil
}

// ListForUser restricts results to diagrams the user may see: public
// diagrams, legacy diagrams with no owner, diagrams they own, and diagrams
// shared with them. A nil userID sees only public and ownerless diagrams.
func (s *SQLite) ListForUser(ctx context.Context, userID *string, filter UserListFilter) (*ListResult, error) {
	where := []string{"is_public = 1", "owner_id IS NULL"}
	args := []interface{}{}

	if userID != nil && *userID != "" {
		where = []string{
			"is_public = 1",
			"owner_id IS NULL",
			"owner_id = ?",
			"EXISTS (SELECT 1 FROM json_each(shares) WHERE json_extract(json_each.value, '$.userId') = ?)",
		}
		args = append(args, *userID, *userID)
	}
	predicate := "(" + strings.Join(where, " OR ") + ")"

	conds := []string{predicate}
	if filter.Project != "" {
		conds = append(conds, "project = ?")
		args = append(args, filter.Project)
	}
	whereClause := strings.Join(conds, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagrams WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count user-visible diagrams: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, name, project, spec, version, owner_id, is_public, shares, created_at, updated_at
		FROM diagrams WHERE %s ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, whereClause)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list user-visible diagrams: %w", err)
	}
	defer rows.Close()

	data, err := scanDiagrams(rows)
	if err != nil {
		return nil, err
	}
	return &ListResult{Data: data, Total: total}, nil
}

// ftsQuery quotes each token so punctuation in the search string can't be
// misread as FTS5 query syntax, then ORs them together as a prefix match.
func ftsQuery(search string) string {
	fields := strings.Fields(search)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, fmt.Sprintf(`"%s"*`, f))
	}
	return strings.Join(quoted, " OR ")
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
