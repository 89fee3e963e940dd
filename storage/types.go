package storage

import (
	"time"

	"github.com/evalgo-org/diagramhub/diagramspec"
)

// Diagram is the canonical stored document.
type Diagram struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Project   string            `json:"project"`
	Spec      *diagramspec.Spec `json:"spec"`
	Version   int64             `json:"version"`
	OwnerID   *string           `json:"ownerId,omitempty"`
	IsPublic  bool              `json:"isPublic"`
	Shares    []Share           `json:"shares"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Share grants a user editor or viewer permission on a diagram.
type Share struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"` // "editor" | "viewer"
}

// Version is an immutable history entry.
type Version struct {
	ID        string            `json:"id"`
	DiagramID string            `json:"diagramId"`
	Version   int64             `json:"version"`
	Spec      *diagramspec.Spec `json:"spec,omitempty"`
	Message   string            `json:"message,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// CreateOptions are the optional fields on Create.
type CreateOptions struct {
	OwnerID  string
	IsPublic bool
}

// SortField enumerates the columns ListPaginated may sort by.
type SortField string

const (
	SortUpdatedAt SortField = "updatedAt"
	SortCreatedAt SortField = "createdAt"
	SortName      SortField = "name"
)

// SortOrder enumerates ascending/descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter is the shared predicate builder for ListPaginated.
type ListFilter struct {
	Project         string
	Limit           int
	Offset          int
	SortBy          SortField
	SortOrder       SortOrder
	Search          string
	Types           []diagramspec.Type
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	UpdatedAfter    *time.Time
	UpdatedBefore   *time.Time
}

// ListResult is a page of diagrams plus the total matching row count.
type ListResult struct {
	Data  []Diagram `json:"data"`
	Total int64     `json:"total"`
}

// UserListFilter narrows ListForUser.
type UserListFilter struct {
	Project string
	Limit   int
	Offset  int
}

// Conflict is returned (not as an error) by Update when an optimistic
// version check fails.
type Conflict struct {
	CurrentVersion int64
}

// Stats summarizes the store's contents for the health/stats surface.
type Stats struct {
	DiagramCount int64 `json:"diagramCount"`
	VersionCount int64 `json:"versionCount"`
	ProjectCount int64 `json:"projectCount"`
}
