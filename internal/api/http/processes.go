package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

var appStates = map[types.AppState]bool{
	types.StateCreate:     true,
	types.StateReady:      true,
	types.StateForeground: true,
	types.StateBackground: true,
	types.StateCached:     true,
	types.StateTerminated: true,
}

// ListProcesses lists process records, optionally filtered by ?state=
func (h *Handlers) ListProcesses(c *gin.Context) {
	var state *types.AppState
	if s := c.Query("state"); s != "" {
		st := types.AppState(s)
		if !appStates[st] {
			fail(c, http.StatusBadRequest, fmt.Errorf("invalid state %q", s))
			return
		}
		state = &st
	}

	c.JSON(http.StatusOK, gin.H{
		"processes": h.apps.List(state),
		"stats":     h.apps.Stats(),
	})
}

// GetProcess returns one process record
func (h *Handlers) GetProcess(c *gin.Context) {
	pid, ok := processID(c)
	if !ok {
		return
	}

	info, found := h.apps.Get(pid)
	if !found {
		fail(c, http.StatusNotFound, fmt.Errorf("process %s not found", pid))
		return
	}
	c.JSON(http.StatusOK, info)
}

// KillProcess terminates a process regardless of its abilities
func (h *Handlers) KillProcess(c *gin.Context) {
	pid, ok := processID(c)
	if !ok {
		return
	}

	if err := h.apps.Kill(pid); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      pid,
	})
}

func processID(c *gin.Context) (id.ProcessID, bool) {
	raw := c.Param("id")
	if !id.Valid(raw, id.ProcessPrefix) {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid process id %q", raw))
		return "", false
	}
	return id.ProcessID(raw), true
}
