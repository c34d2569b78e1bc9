package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/ode"
)

// Controller holds the route handlers and their dependencies.
type Controller struct {
	Group *echo.Group

	handler *ode.Handler
	history eventlog.Repository
	log     logger.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Category string `json:"category,omitempty"`
}

func (c *Controller) initRoutes() {
	c.Group.GET("/schema", c.GetSchema)

	c.Group.GET("/handler", c.GetHandler)
	c.Group.PATCH("/handler/toggle", c.ToggleHandler)
	c.Group.POST("/handler/validate", c.ValidateHandler)

	c.initTriggerRoutes()
	c.initActionRoutes()
	c.Group.GET("/areas", c.ListAreas)
	c.initHistoryRoutes()
}

// HandleError writes err as a JSON error with the given status. Engine
// errors carry a category that overrides status.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, status int) error {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Message = err.Error()
		category := errors.CategoryOf(err)
		if category != errors.CategoryGeneric {
			resp.Category = string(category)
		}
		status = statusFor(category, status)
	}
	if status >= http.StatusInternalServerError {
		c.logErrorIfEnabled(message, logger.Error(err), logger.String("path", ctx.Path()))
	}
	return ctx.JSON(status, resp)
}

func statusFor(category errors.Category, fallback int) int {
	switch category {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	default:
		return fallback
	}
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Error(msg, fields...)
	}
}

// Health reports liveness and whether the handler is enabled.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"handler": c.handler.Name(),
		"enabled": c.handler.Enabled(),
	})
}

// GetSchema returns the catalog of trigger and action kinds.
func (c *Controller) GetSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ode.GetSchema())
}

// GetHandler returns the handler state.
func (c *Controller) GetHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.handler.Info())
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func bindToggle(ctx echo.Context) (bool, bool) {
	var body toggleRequest
	if err := ctx.Bind(&body); err != nil || body.Enabled == nil {
		return false, false
	}
	return *body.Enabled, true
}

// ToggleHandler enables or disables evaluation for the whole handler.
func (c *Controller) ToggleHandler(ctx echo.Context) error {
	enabled, ok := bindToggle(ctx)
	if !ok {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Request body must set enabled"})
	}
	if enabled {
		c.handler.Enable()
	} else {
		c.handler.Disable()
	}
	c.log.Info("handler toggled", logger.Bool("enabled", enabled))
	return ctx.JSON(http.StatusOK, c.handler.Info())
}

// ValidateHandler checks that every name an action references resolves.
func (c *Controller) ValidateHandler(ctx echo.Context) error {
	if err := c.handler.Validate(); err != nil {
		return ctx.JSON(http.StatusUnprocessableEntity, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"valid": true})
}

type areaView struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Polarity string `json:"polarity"`
	Color    string `json:"color,omitempty"`
}

// ListAreas returns every registered area.
func (c *Controller) ListAreas(ctx echo.Context) error {
	areas := c.handler.Areas()
	views := make([]areaView, 0, len(areas))
	for _, a := range areas {
		views = append(views, describeArea(a))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"areas": views,
		"count": len(views),
	})
}

func parseIntQuery(ctx echo.Context, name string, fallback, limit int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}
