package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/app"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/id"
)

// Launch starts an ability
func (h *Handlers) Launch(c *gin.Context) {
	var req app.LaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	res, err := h.apps.Launch(c.Request.Context(), req)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Foreground brings an ability to the foreground
func (h *Handlers) Foreground(c *gin.Context) {
	token, ok := abilityToken(c)
	if !ok {
		return
	}

	info, err := h.apps.Foreground(token)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Background moves an ability to the background
func (h *Handlers) Background(c *gin.Context) {
	token, ok := abilityToken(c)
	if !ok {
		return
	}

	info, err := h.apps.Background(token)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Terminate ends an ability
func (h *Handlers) Terminate(c *gin.Context) {
	token, ok := abilityToken(c)
	if !ok {
		return
	}

	res, err := h.apps.Terminate(token)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func abilityToken(c *gin.Context) (id.AbilityToken, bool) {
	raw := c.Param("token")
	if !id.Valid(raw, id.AbilityPrefix) {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid ability token %q", raw))
		return "", false
	}
	return id.AbilityToken(raw), true
}
