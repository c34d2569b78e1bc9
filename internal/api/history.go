package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/ode"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (c *Controller) initHistoryRoutes() {
	history := c.Group.Group("/history")
	history.GET("", c.ListHistory)
	history.GET("/summary", c.GetHistorySummary)
	history.GET("/:id", c.GetHistoryEntry)
	history.DELETE("", c.ClearHistory)
}

// requireHistory rejects history requests when the event log is disabled.
func (c *Controller) requireHistory(ctx echo.Context) error {
	return c.HandleError(ctx, errors.NewStd("event log not enabled"),
		"Occurrence history requires the event log", http.StatusConflict)
}

// historyEntry is one logged occurrence with its decoded payload.
type historyEntry struct {
	ID      uint        `json:"id"`
	Payload ode.Payload `json:"payload"`
}

func toEntry(o *eventlog.Occurrence) (historyEntry, error) {
	p, err := o.Decode()
	if err != nil {
		return historyEntry{}, err
	}
	return historyEntry{ID: o.ID, Payload: p}, nil
}

// ListHistory returns paginated occurrences, newest first.
func (c *Controller) ListHistory(ctx echo.Context) error {
	if c.history == nil {
		return c.requireHistory(ctx)
	}

	filter := eventlog.Filter{
		Trigger: ctx.QueryParam("trigger"),
		Kind:    ctx.QueryParam("kind"),
		Limit:   parseIntQuery(ctx, "limit", defaultHistoryLimit, maxHistoryLimit),
		Offset:  parseIntQuery(ctx, "offset", 0, 0),
	}
	if filter.Limit == 0 {
		filter.Limit = defaultHistoryLimit
	}
	if raw := ctx.QueryParam("source_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid source_id"})
		}
		src := uint(v)
		filter.SourceID = &src
	}
	var err error
	if filter.Since, err = parseTimeQuery(ctx, "since"); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid since, expected RFC 3339"})
	}
	if filter.Until, err = parseTimeQuery(ctx, "until"); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid until, expected RFC 3339"})
	}

	items, total, err := c.history.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list occurrence history", http.StatusInternalServerError)
	}

	entries := make([]historyEntry, 0, len(items))
	for i := range items {
		e, err := toEntry(&items[i])
		if err != nil {
			return c.HandleError(ctx, err, "Failed to decode occurrence", http.StatusInternalServerError)
		}
		entries = append(entries, e)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"history": entries,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetHistoryEntry returns one logged occurrence by row id.
func (c *Controller) GetHistoryEntry(ctx echo.Context) error {
	if c.history == nil {
		return c.requireHistory(ctx)
	}

	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid occurrence ID"})
	}

	o, err := c.history.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, eventlog.ErrOccurrenceNotFound) {
			return ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "Occurrence not found"})
		}
		return c.HandleError(ctx, err, "Failed to get occurrence", http.StatusInternalServerError)
	}
	e, err := toEntry(o)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to decode occurrence", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, e)
}

// GetHistorySummary returns per-trigger occurrence totals since the given
// time, or over the whole log.
func (c *Controller) GetHistorySummary(ctx echo.Context) error {
	if c.history == nil {
		return c.requireHistory(ctx)
	}

	since, err := parseTimeQuery(ctx, "since")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid since, expected RFC 3339"})
	}
	counts, err := c.history.CountByTrigger(ctx.Request().Context(), since)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to summarize occurrence history", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"triggers": counts})
}

// ClearHistory deletes every logged occurrence.
func (c *Controller) ClearHistory(ctx echo.Context) error {
	if c.history == nil {
		return c.requireHistory(ctx)
	}

	deleted, err := c.history.DeleteAll(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to clear occurrence history", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"deleted": deleted})
}

func parseTimeQuery(ctx echo.Context, name string) (time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
