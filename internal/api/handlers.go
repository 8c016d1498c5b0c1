package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/journal"
)

// EntriesResponse is the response for entry listings
type EntriesResponse struct {
	Entries []domain.EntryWithTags `json:"entries"`
	Count   int                    `json:"count"`
}

// ResolveTagRequest is the request body for resolving a tag
type ResolveTagRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ResolveTagResponse carries the stable id of a tag
type ResolveTagResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category domain.Category `json:"category"`
}

func (s *Server) addEntry(c echo.Context) error {
	var req journal.Draft
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	entry, err := s.journal.Record(c.Request().Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// queryFromRequest reads from, to, where and limit query parameters
func (s *Server) queryFromRequest(c echo.Context) (journal.Query, error) {
	var q journal.Query
	var err error

	if q.From, err = s.journal.ParseTime(c.QueryParam("from"), false); err != nil {
		return q, err
	}
	if q.To, err = s.journal.ParseTime(c.QueryParam("to"), true); err != nil {
		return q, err
	}
	q.Where = c.QueryParam("where")

	if l := c.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return q, errBadParam("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}

func (s *Server) listEntries(c echo.Context) error {
	q, err := s.queryFromRequest(c)
	if err != nil {
		return s.writeError(c, err)
	}

	entries, err := s.journal.Entries(c.Request().Context(), q)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, EntriesResponse{Entries: nonNil(entries), Count: len(entries)})
}

func (s *Server) latestEntry(c echo.Context) error {
	entry, err := s.journal.Latest(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	if entry == nil {
		return c.JSON(http.StatusNotFound, errorBody("no entries yet"))
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) getEntry(c echo.Context) error {
	entry, err := s.journal.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) searchEntries(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorBody("query parameter 'q' is required"))
	}

	entries, err := s.journal.Search(c.Request().Context(), query)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": nonNil(entries),
		"query":   query,
	})
}

func (s *Server) listTags(c echo.Context) error {
	tags, err := s.journal.Tags(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return s.writeError(c, err)
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tags": tags})
}

func (s *Server) resolveTag(c echo.Context) error {
	var req ResolveTagRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	tag, err := journal.ParseTag(req.Name, req.Category)
	if err != nil {
		return s.writeError(c, err)
	}
	id, err := s.journal.ResolveTag(c.Request().Context(), tag.Name, string(tag.Category))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, ResolveTagResponse{ID: id, Name: tag.Name, Category: tag.Category})
}

func (s *Server) getAnalytics(c echo.Context) error {
	summary, err := s.journal.Summary(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) getStats(c echo.Context) error {
	stats, err := s.journal.Stats(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

type badParamError string

func (e badParamError) Error() string { return string(e) }

func errBadParam(msg string) error { return badParamError(msg) }

// statusOf maps journal errors to HTTP status codes
func statusOf(err error) int {
	var bad badParamError
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrAmbiguousID), errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c echo.Context, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}
	return c.JSON(status, errorBody(err.Error()))
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func nonNil(entries []domain.EntryWithTags) []domain.EntryWithTags {
	if entries == nil {
		return []domain.EntryWithTags{}
	}
	return entries
}
