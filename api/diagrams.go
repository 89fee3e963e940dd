package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/evalgo-org/diagramhub/diagramspec"
	"github.com/evalgo-org/diagramhub/diffengine"
	"github.com/evalgo-org/diagramhub/storage"
	"github.com/labstack/echo/v4"
)

// versionsPage is the paginated-history response shape, mirroring
// storage.ListResult but over Version rows instead of Diagram rows.
type versionsPage struct {
	Data  []storage.Version `json:"data"`
	Total int64             `json:"total"`
}

type createDiagramRequest struct {
	Name     string          `json:"name"`
	Project  string          `json:"project"`
	Spec     json.RawMessage `json:"spec"`
	IsPublic bool            `json:"isPublic"`
}

func (s *Server) handleCreateDiagram(c echo.Context) error {
	var req createDiagramRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return newValidationError("name is required", nil)
	}

	spec, err := diagramspec.ParseStrict(req.Spec)
	if err != nil {
		return newValidationError(err.Error(), err)
	}
	if err := s.guard.CheckSpec(req.Spec, spec); err != nil {
		return err
	}

	identity := identityFrom(c)
	opts := storage.CreateOptions{IsPublic: req.IsPublic}
	if identity.UserID != nil {
		opts.OwnerID = *identity.UserID
	}

	diagram, err := s.storage.Create(c.Request().Context(), req.Name, req.Project, spec, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, diagram)
}

func (s *Server) handleGetDiagram(c echo.Context) error {
	diagram, err := s.storage.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if diagram == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagram not found")
	}
	return c.JSON(http.StatusOK, diagram)
}

type updateDiagramRequest struct {
	Spec        json.RawMessage `json:"spec"`
	Message     string          `json:"message"`
	BaseVersion *int64          `json:"baseVersion"`
}

func (s *Server) handleUpdateDiagram(c echo.Context) error {
	var req updateDiagramRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	spec, err := diagramspec.ParseStrict(req.Spec)
	if err != nil {
		return newValidationError(err.Error(), err)
	}
	if err := s.guard.CheckSpec(req.Spec, spec); err != nil {
		return err
	}

	id := c.Param("id")
	diagram, conflict, err := s.storage.Update(c.Request().Context(), id, spec, req.Message, req.BaseVersion)
	if err != nil {
		return err
	}
	if conflict != nil {
		return c.JSON(http.StatusConflict, apiErrorEnvelope{Error: apiError{
			Code:    "VERSION_CONFLICT",
			Message: "diagram was modified by another writer",
			Details: map[string]int64{"currentVersion": conflict.CurrentVersion},
		}})
	}
	if diagram == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagram not found")
	}

	s.hub.BroadcastSync(id, diagram.Spec, &diagram.Version)
	return c.JSON(http.StatusOK, diagram)
}

func (s *Server) handleDeleteDiagram(c echo.Context) error {
	id := c.Param("id")
	ok, err := s.storage.Delete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "diagram not found")
	}
	if err := s.thumbs.Delete(id); err != nil {
		s.logger.WithError(err).WithField("diagramId", id).Warn("failed to delete thumbnail on diagram delete")
	}
	return c.NoContent(http.StatusNoContent)
}

type forkDiagramRequest struct {
	Name    string `json:"name"`
	Project string `json:"project"`
}

func (s *Server) handleForkDiagram(c echo.Context) error {
	var req forkDiagramRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	diagram, err := s.storage.Fork(c.Request().Context(), c.Param("id"), req.Name, req.Project)
	if err != nil {
		return err
	}
	if diagram == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagram not found")
	}
	return c.JSON(http.StatusCreated, diagram)
}

type saveThumbnailRequest struct {
	DataURL string `json:"dataUrl"`
}

func (s *Server) handleSaveThumbnail(c echo.Context) error {
	var req saveThumbnailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id := c.Param("id")
	diagram, err := s.storage.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if diagram == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagram not found")
	}
	if err := s.thumbs.Save(id, req.DataURL); err != nil {
		return newValidationError(err.Error(), nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDiagrams(c echo.Context) error {
	identity := identityFrom(c)
	q := c.QueryParams()

	if q.Get("search") != "" || len(q["type"]) > 0 || q.Get("sortBy") != "" {
		filter, err := parseListFilter(q)
		if err != nil {
			return newValidationError(err.Error(), nil)
		}
		result, err := s.storage.ListPaginated(c.Request().Context(), filter)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	}

	userFilter := storage.UserListFilter{
		Project: q.Get("project"),
		Limit:   parseIntDefault(q.Get("limit"), 50),
		Offset:  parseIntDefault(q.Get("offset"), 0),
	}
	result, err := s.storage.ListForUser(c.Request().Context(), identity.UserID, userFilter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func parseListFilter(q map[string][]string) (storage.ListFilter, error) {
	get := func(key string) string {
		if v, ok := q[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	filter := storage.ListFilter{
		Project:   get("project"),
		Limit:     parseIntDefault(get("limit"), 20),
		Offset:    parseIntDefault(get("offset"), 0),
		SortBy:    storage.SortField(defaultString(get("sortBy"), string(storage.SortUpdatedAt))),
		SortOrder: storage.SortOrder(defaultString(get("sortOrder"), string(storage.SortDesc))),
		Search:    get("search"),
	}

	for _, t := range q["type"] {
		filter.Types = append(filter.Types, diagramspec.Type(t))
	}

	var err error
	if filter.CreatedAfter, err = parseTimeParam(get("createdAfter")); err != nil {
		return filter, err
	}
	if filter.CreatedBefore, err = parseTimeParam(get("createdBefore")); err != nil {
		return filter, err
	}
	if filter.UpdatedAfter, err = parseTimeParam(get("updatedAfter")); err != nil {
		return filter, err
	}
	if filter.UpdatedBefore, err = parseTimeParam(get("updatedBefore")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Server) handleListVersions(c echo.Context) error {
	id := c.Param("id")
	q := c.QueryParams()
	limit := parseIntDefault(q.Get("limit"), 0)
	if limit <= 0 {
		versions, err := s.storage.GetVersionsMetadata(c.Request().Context(), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, versions)
	}
	offset := parseIntDefault(q.Get("offset"), 0)
	versions, total, err := s.storage.GetVersionsPaginated(c.Request().Context(), id, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, versionsPage{Data: versions, Total: total})
}

func (s *Server) handleGetVersion(c echo.Context) error {
	n, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		return newValidationError("version must be an integer", nil)
	}
	v, err := s.storage.GetVersion(c.Request().Context(), c.Param("id"), n)
	if err != nil {
		return err
	}
	if v == nil {
		return echo.NewHTTPError(http.StatusNotFound, "version not found")
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) handleRestoreVersion(c echo.Context) error {
	n, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		return newValidationError("version must be an integer", nil)
	}
	id := c.Param("id")
	diagram, err := s.storage.RestoreVersion(c.Request().Context(), id, n)
	if err != nil {
		return err
	}
	if diagram == nil {
		return echo.NewHTTPError(http.StatusNotFound, "diagram or version not found")
	}
	s.hub.BroadcastSync(id, diagram.Spec, &diagram.Version)
	return c.JSON(http.StatusOK, diagram)
}

func (s *Server) handleDiff(c echo.Context) error {
	id := c.Param("id")
	fromN, err := strconv.ParseInt(c.QueryParam("from"), 10, 64)
	if err != nil {
		return newValidationError("from must be an integer version", nil)
	}
	toN, err := strconv.ParseInt(c.QueryParam("to"), 10, 64)
	if err != nil {
		return newValidationError("to must be an integer version", nil)
	}

	from, err := s.storage.GetVersion(c.Request().Context(), id, fromN)
	if err != nil {
		return err
	}
	to, err := s.storage.GetVersion(c.Request().Context(), id, toN)
	if err != nil {
		return err
	}
	if from == nil || to == nil {
		return echo.NewHTTPError(http.StatusNotFound, "version not found")
	}

	diff := diffengine.Compute(from.Spec, to.Spec)
	return c.JSON(http.StatusOK, diff)
}
