package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/automation-engine/pkg/api/dto"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/types"
)

// ExecutionHandler Execution API处理器
type ExecutionHandler struct {
	engine *engine.Engine
}

// NewExecutionHandler 创建ExecutionHandler
func NewExecutionHandler(eng *engine.Engine) *ExecutionHandler {
	return &ExecutionHandler{engine: eng}
}

// List 列出Execution
// GET /api/v1/executions?workflow_id=&status=
func (h *ExecutionHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	workflowID := c.Query("workflow_id")
	status := execution.Status(c.Query("status"))

	executions, err := h.engine.ListExecutions(ctx, workflowID, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	items := dto.FromExecutions(executions)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ExecutionDTO]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取Execution详情
// GET /api/v1/executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	exec, err := h.engine.GetExecution(ctx, id)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Execution not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromExecution(exec)))
}

// Confirm 对等待确认的Execution提交确认结果
// POST /api/v1/executions/:id/confirm
func (h *ExecutionHandler) Confirm(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.ConfirmExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, err.Error()))
		return
	}

	exec, err := h.engine.ConfirmExecution(ctx, id, req.Approved)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Execution not found"))
		return
	}
	if types.IsValidation(err) {
		c.JSON(http.StatusConflict, dto.NewErrorResponse(409, err.Error()))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromExecution(exec)))
}

// Cancel 取消Execution
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	exec, err := h.engine.CancelExecution(ctx, id, "客户端取消")
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Execution not found"))
		return
	}
	if types.IsValidation(err) {
		c.JSON(http.StatusConflict, dto.NewErrorResponse(409, err.Error()))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromExecution(exec)))
}
