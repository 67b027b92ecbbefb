package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clickweave/clickweave/config"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/automation"
	"github.com/clickweave/clickweave/services/coordinator"
	"github.com/clickweave/clickweave/services/scheduler"
)

type Handler struct {
	coord  *coordinator.Coordinator
	config *config.Config
}

func NewHandler(coord *coordinator.Coordinator, cfg *config.Config) *Handler {
	return &Handler{coord: coord, config: cfg}
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, automation.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidProfile),
		errors.Is(err, models.ErrInvalidStep),
		errors.Is(err, scheduler.ErrInvalidCron),
		errors.Is(err, scheduler.ErrStartInPast),
		errors.Is(err, scheduler.ErrNoSchedule),
		errors.Is(err, scheduler.ErrDisabled),
		errors.Is(err, scheduler.ErrShortRepeat),
		errors.Is(err, coordinator.ErrNoProfile):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ============= Auth =============

// CheckAuth reports whether the API requires a token.
func (h *Handler) CheckAuth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"auth_enabled": h.config.Auth.Enabled})
}

// ============= Profiles =============

func (h *Handler) ListProfiles(c *gin.Context) {
	profiles := h.coord.Profiles()
	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"total":    len(profiles),
	})
}

// GetProfile returns one profile
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.coord.Profile(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProfile decodes the body over a default profile so omitted fields
// keep their defaults.
func (h *Handler) CreateProfile(c *gin.Context) {
	p := models.NewProfile("", "")
	if err := c.ShouldBindJSON(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if _, err := h.coord.Profile(p.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("profile %s already exists", p.ID)})
		return
	}
	p.CreatedAt = time.Time{}
	if err := h.coord.SaveProfile(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}
	saved, _ := h.coord.Profile(p.ID)
	c.JSON(http.StatusCreated, saved)
}

// UpdateProfile replaces a profile and re-arms its triggers
func (h *Handler) UpdateProfile(c *gin.Context) {
	id := c.Param("id")
	existing, err := h.coord.Profile(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	p := existing.Copy()
	if err := c.ShouldBindJSON(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.ID = id
	p.CreatedAt = existing.CreatedAt
	if err := h.coord.SaveProfile(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}
	saved, _ := h.coord.Profile(id)
	c.JSON(http.StatusOK, saved)
}

// DeleteProfile stops the profile if it is running and removes it
func (h *Handler) DeleteProfile(c *gin.Context) {
	if err := h.coord.DeleteProfile(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success.profileDeleted"})
}

// ============= Session control =============

func (h *Handler) StartProfile(c *gin.Context) {
	if err := h.coord.StartProfile(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "success.automationStarted",
		"status":  h.coord.Controller().Status(),
	})
}

// control wraps a bool-returning control op. A false result means the
// controller was not in a state where the op applies.
func (h *Handler) control(op func() bool, okMsg, noopMsg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !op() {
			c.JSON(http.StatusConflict, gin.H{
				"error":  noopMsg,
				"status": h.coord.Controller().Status(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": okMsg,
			"status":  h.coord.Controller().Status(),
		})
	}
}

// StopAutomation is idempotent: stopping an idle controller still succeeds.
func (h *Handler) StopAutomation(c *gin.Context) {
	h.coord.Stop()
	c.JSON(http.StatusOK, gin.H{
		"message": "success.automationStopped",
		"status":  h.coord.Controller().Status(),
	})
}

// PauseAutomation pauses the running session
func (h *Handler) PauseAutomation(c *gin.Context) {
	h.control(h.coord.Pause, "success.automationPaused", "error.automationNotRunning")(c)
}

// ResumeAutomation resumes a paused session
func (h *Handler) ResumeAutomation(c *gin.Context) {
	h.control(h.coord.Resume, "success.automationResumed", "error.automationNotPaused")(c)
}

// TogglePause pauses or resumes, like the pause hotkey
func (h *Handler) TogglePause(c *gin.Context) {
	h.control(h.coord.TogglePause, "success.automationToggled", "error.automationNotRunning")(c)
}

// EmergencyStop always answers 200; it is a no-op when idle.
func (h *Handler) EmergencyStop(c *gin.Context) {
	stopped := h.coord.EmergencyStop()
	logger.Warn(c.Request.Context(), "Emergency stop requested (session stopped: %v)", stopped)
	c.JSON(http.StatusOK, gin.H{
		"stopped": stopped,
		"status":  h.coord.Status(),
	})
}

// ToggleStartStop stops the session or starts the last profile, like the start/stop hotkey
func (h *Handler) ToggleStartStop(c *gin.Context) {
	state, err := h.coord.ToggleStartStop(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// Status reports the session, the watcher and the schedules
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Status())
}

// GetFailsafe returns the corner failsafe settings
func (h *Handler) GetFailsafe(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Controller().Failsafe())
}

// SetFailsafe updates the corner failsafe
func (h *Handler) SetFailsafe(c *gin.Context) {
	f := h.coord.Controller().Failsafe()
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := automation.ParseCorner(string(f.Corner)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if f.Size < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failsafe size must be >= 1"})
		return
	}
	h.coord.SetFailsafe(f)
	c.JSON(http.StatusOK, f)
}

// ============= Schedules =============

func (h *Handler) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": h.coord.Schedules()})
}

// ScheduleStats summarizes the job table
func (h *Handler) ScheduleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.ScheduleStats())
}

// PauseAllSchedules pauses every scheduled job
func (h *Handler) PauseAllSchedules(c *gin.Context) {
	n := h.coord.PauseAllSchedules()
	c.JSON(http.StatusOK, gin.H{"message": "success.schedulesPaused", "count": n})
}

// ResumeAllSchedules resumes every paused job
func (h *Handler) ResumeAllSchedules(c *gin.Context) {
	n := h.coord.ResumeAllSchedules()
	c.JSON(http.StatusOK, gin.H{"message": "success.schedulesResumed", "count": n})
}

type validateCronRequest struct {
	Expression string `json:"cron_expression" binding:"required"`
}

// ValidateCron checks a five-field cron expression
func (h *Handler) ValidateCron(c *gin.Context) {
	var req validateCronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scheduler.ValidateCron(req.Expression); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type previewRequest struct {
	Trigger models.ScheduleTrigger `json:"schedule_trigger"`
	Count   int                    `json:"count"`
}

// PreviewSchedule lists upcoming fire times of a trigger
func (h *Handler) PreviewSchedule(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count <= 0 || req.Count > 50 {
		req.Count = 5
	}
	runs, err := h.coord.PreviewSchedule(req.Trigger, req.Count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next_runs": runs})
}

// PauseSchedule pauses one profile's job
func (h *Handler) PauseSchedule(c *gin.Context) {
	if !h.coord.PauseSchedule(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.scheduleNotFound"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success.schedulePaused"})
}

// ResumeSchedule resumes one profile's job
func (h *Handler) ResumeSchedule(c *gin.Context) {
	if !h.coord.ResumeSchedule(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.scheduleNotFound"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success.scheduleResumed"})
}

// ============= Pixel =============

func (h *Handler) PixelColor(c *gin.Context) {
	x, errX := strconv.Atoi(c.Query("x"))
	y, errY := strconv.Atoi(c.Query("y"))
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x and y query parameters must be integers"})
		return
	}
	p := models.Point{X: x, Y: y}
	color, err := h.coord.PixelColor(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coordinates": p,
		"color":       color,
		"hex":         color.Hex(),
	})
}

// ProbePixel evaluates a pixel trigger once
func (h *Handler) ProbePixel(c *gin.Context) {
	var t models.PixelTrigger
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.coord.ProbePixel(c.Request.Context(), t)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// StartWatcher starts pixel monitoring
func (h *Handler) StartWatcher(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"started": h.coord.StartWatcher()})
}

// StopWatcher stops pixel monitoring
func (h *Handler) StopWatcher(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stopped": h.coord.StopWatcher()})
}

// ============= Execution logs =============

func (h *Handler) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.coord.Logs(c.Query("profile_id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": len(logs),
	})
}

// ExportLogs downloads execution logs as CSV
func (h *Handler) ExportLogs(c *gin.Context) {
	name := fmt.Sprintf("clickweave_logs_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
	if err := h.coord.ExportCSV(c.Writer, c.Query("profile_id")); err != nil {
		logger.Error(c.Request.Context(), "Failed to export logs: %v", err)
	}
}

// ClearLogs deletes every execution log
func (h *Handler) ClearLogs(c *gin.Context) {
	if err := h.coord.ClearLogs(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success.logsCleared"})
}
