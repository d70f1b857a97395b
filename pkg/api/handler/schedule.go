package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/automation-engine/pkg/api/dto"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
)

// ScheduleHandler Schedule API处理器
type ScheduleHandler struct {
	scheduler *engine.Scheduler
}

// NewScheduleHandler 创建ScheduleHandler
func NewScheduleHandler(s *engine.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{scheduler: s}
}

// List 列出所有Schedule
// GET /api/v1/schedules?status=
func (h *ScheduleHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	status := schedule.Status(c.Query("status"))

	schedules, err := h.scheduler.ListSchedules(ctx, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	items := dto.FromSchedules(schedules)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ScheduleDTO]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取Schedule详情
// GET /api/v1/schedules/:id
func (h *ScheduleHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	s, err := h.scheduler.GetSchedule(ctx, id)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeScheduleNotFound, "Schedule not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromSchedule(s)))
}

// Create 创建Schedule
// POST /api/v1/schedules
func (h *ScheduleHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	s, err := h.scheduler.CreateSchedule(ctx, req.Name, req.CronExpression, req.Timezone, req.Prompt, req.WorkflowID)
	if err != nil {
		status := http.StatusInternalServerError
		if types.IsValidation(err) || types.IsNotFound(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromSchedule(s)))
}

// Update 更新Schedule
// PUT /api/v1/schedules/:id
func (h *ScheduleHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	existing, err := h.scheduler.GetSchedule(ctx, id)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeScheduleNotFound, "Schedule not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	applyScheduleUpdate(existing, &req)
	found, err := h.scheduler.UpdateSchedule(ctx, existing)
	if err != nil {
		status := http.StatusInternalServerError
		if types.IsValidation(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeScheduleNotFound, "Schedule not found"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromSchedule(existing)))
}

// Delete 删除Schedule
// DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.scheduler.DeleteSchedule(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeScheduleError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"deleted": id}))
}

// applyScheduleUpdate 按请求字段增量更新
func applyScheduleUpdate(s *schedule.Schedule, req *dto.UpdateScheduleRequest) {
	if req.Name != "" {
		s.Name = req.Name
	}
	if req.CronExpression != "" {
		s.CronExpression = req.CronExpression
	}
	if req.Timezone != "" {
		s.Timezone = req.Timezone
	}
	if req.Prompt != "" {
		s.Prompt = req.Prompt
	}
	if req.WorkflowID != "" {
		s.WorkflowID = req.WorkflowID
	}
	if req.Status != "" {
		s.Status = schedule.Status(req.Status)
	}
}
