package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/odeflow/internal/area"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/ode"
)

func (c *Controller) initTriggerRoutes() {
	triggers := c.Group.Group("/triggers")
	triggers.GET("", c.ListTriggers)
	triggers.GET("/:name", c.GetTrigger)
	triggers.PATCH("/:name", c.UpdateTrigger)
	triggers.PATCH("/:name/toggle", c.ToggleTrigger)
	triggers.POST("/:name/reset", c.ResetTrigger)
	triggers.PUT("/:name/actions/:action", c.AttachAction)
	triggers.DELETE("/:name/actions/:action", c.DetachAction)
	triggers.PUT("/:name/areas/:area", c.AttachArea)
	triggers.DELETE("/:name/areas/:area", c.DetachArea)
}

func (c *Controller) initActionRoutes() {
	actions := c.Group.Group("/actions")
	actions.GET("", c.ListActions)
	actions.GET("/:name", c.GetAction)
	actions.PATCH("/:name/toggle", c.ToggleAction)
}

// ListTriggers returns every trigger in evaluation order.
func (c *Controller) ListTriggers(ctx echo.Context) error {
	triggers := c.handler.Triggers()
	infos := make([]ode.TriggerInfo, 0, len(triggers))
	for _, t := range triggers {
		infos = append(infos, t.Info())
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"triggers": infos,
		"count":    len(infos),
	})
}

// GetTrigger returns a single trigger by name.
func (c *Controller) GetTrigger(ctx echo.Context) error {
	t, err := c.handler.Trigger(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Trigger not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, t.Info())
}

type triggerUpdate struct {
	Limit          *uint  `json:"limit"`
	ResetTimeoutMs *int64 `json:"reset_timeout_ms"`
	AreaPolicy     string `json:"area_policy"`
}

// UpdateTrigger changes the limit, reset timeout or area policy of a trigger.
// Omitted fields are left unchanged.
func (c *Controller) UpdateTrigger(ctx echo.Context) error {
	t, err := c.handler.Trigger(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Trigger not found", http.StatusNotFound)
	}

	var body triggerUpdate
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
	}
	if body.ResetTimeoutMs != nil && *body.ResetTimeoutMs < 0 {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "reset_timeout_ms must not be negative"})
	}
	var policy ode.AreaPolicy
	if body.AreaPolicy != "" {
		if policy, err = ode.ParseAreaPolicy(body.AreaPolicy); err != nil {
			return c.HandleError(ctx, err, "Invalid area policy", http.StatusBadRequest)
		}
	}

	if body.Limit != nil {
		t.SetLimit(*body.Limit)
	}
	if body.ResetTimeoutMs != nil {
		t.SetResetTimeout(time.Duration(*body.ResetTimeoutMs) * time.Millisecond)
	}
	if body.AreaPolicy != "" {
		t.SetAreaPolicy(policy)
	}
	return ctx.JSON(http.StatusOK, t.Info())
}

// ToggleTrigger enables or disables a trigger.
func (c *Controller) ToggleTrigger(ctx echo.Context) error {
	t, err := c.handler.Trigger(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Trigger not found", http.StatusNotFound)
	}
	enabled, ok := bindToggle(ctx)
	if !ok {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Request body must set enabled"})
	}
	t.SetEnabled(enabled)
	c.log.Info("trigger toggled", logger.String("trigger", t.Name()), logger.Bool("enabled", enabled))
	return ctx.JSON(http.StatusOK, map[string]any{"name": t.Name(), "enabled": enabled})
}

// ResetTrigger clears the fired count and accumulated state of a trigger.
func (c *Controller) ResetTrigger(ctx echo.Context) error {
	t, err := c.handler.Trigger(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Trigger not found", http.StatusNotFound)
	}
	t.Reset()
	return ctx.JSON(http.StatusOK, t.Info())
}

// AttachAction appends a registered action to a trigger.
func (c *Controller) AttachAction(ctx echo.Context) error {
	if err := c.handler.AttachAction(ctx.Param("name"), ctx.Param("action")); err != nil {
		return c.HandleError(ctx, err, "Failed to attach action", http.StatusInternalServerError)
	}
	return c.GetTrigger(ctx)
}

// DetachAction removes an action from a trigger.
func (c *Controller) DetachAction(ctx echo.Context) error {
	if err := c.handler.DetachAction(ctx.Param("name"), ctx.Param("action")); err != nil {
		return c.HandleError(ctx, err, "Failed to detach action", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// AttachArea adds a registered area to a trigger.
func (c *Controller) AttachArea(ctx echo.Context) error {
	if err := c.handler.AttachArea(ctx.Param("name"), ctx.Param("area")); err != nil {
		return c.HandleError(ctx, err, "Failed to attach area", http.StatusInternalServerError)
	}
	return c.GetTrigger(ctx)
}

// DetachArea removes an area from a trigger.
func (c *Controller) DetachArea(ctx echo.Context) error {
	if err := c.handler.DetachArea(ctx.Param("name"), ctx.Param("area")); err != nil {
		return c.HandleError(ctx, err, "Failed to detach area", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListActions returns every registered action sorted by name.
func (c *Controller) ListActions(ctx echo.Context) error {
	actions := c.handler.Actions()
	infos := make([]ode.ActionInfo, 0, len(actions))
	for _, a := range actions {
		infos = append(infos, ode.DescribeAction(a))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"actions": infos,
		"count":   len(infos),
	})
}

// GetAction returns a single action by name.
func (c *Controller) GetAction(ctx echo.Context) error {
	a, err := c.handler.Action(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Action not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, ode.DescribeAction(a))
}

// ToggleAction enables or disables an action.
func (c *Controller) ToggleAction(ctx echo.Context) error {
	a, err := c.handler.Action(ctx.Param("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Action not found", http.StatusNotFound)
	}
	enabled, ok := bindToggle(ctx)
	if !ok {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Request body must set enabled"})
	}
	a.SetEnabled(enabled)
	c.log.Info("action toggled", logger.String("action", a.Name()), logger.Bool("enabled", enabled))
	return ctx.JSON(http.StatusOK, map[string]any{"name": a.Name(), "enabled": enabled})
}

func describeArea(a area.Area) areaView {
	v := areaView{
		Name:     a.Name(),
		Type:     "polygon",
		Polarity: a.Polarity().String(),
		Color:    a.Style().Color,
	}
	if _, ok := a.(*area.Line); ok {
		v.Type = "line"
	}
	return v
}
