package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/automation-engine/pkg/api/dto"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
)

// WorkflowHandler Workflow API处理器
type WorkflowHandler struct {
	engine *engine.Engine
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// List 列出所有Workflow
// GET /api/v1/workflows?status=
func (h *WorkflowHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	status := workflow.Status(c.Query("status"))

	workflows, err := h.engine.ListWorkflows(ctx, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	items := dto.FromWorkflows(workflows)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkflowDTO]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取Workflow详情
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	wf, err := h.engine.GetWorkflow(ctx, id)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeWorkflowNotFound, "Workflow not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromWorkflow(wf)))
}

// Create 创建Workflow
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	wf, err := h.engine.CreateWorkflow(ctx, req.Name, req.Description, req.Steps)
	if err != nil {
		status := http.StatusInternalServerError
		if types.IsValidation(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromWorkflow(wf)))
}

// Update 更新Workflow
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	existing, err := h.engine.GetWorkflow(ctx, id)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeWorkflowNotFound, "Workflow not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	applyWorkflowUpdate(existing, &req)
	found, err := h.engine.UpdateWorkflow(ctx, existing)
	if err != nil {
		status := http.StatusInternalServerError
		if types.IsValidation(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeWorkflowNotFound, "Workflow not found"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromWorkflow(existing)))
}

// Delete 删除Workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.engine.DeleteWorkflow(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"deleted": id}))
}

// Execute 手动触发Workflow
// POST /api/v1/workflows/:id/execute
func (h *WorkflowHandler) Execute(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.ExecuteWorkflowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
			return
		}
	}

	exec, err := h.engine.TriggerWorkflow(ctx, id, execution.TriggerManual, req.Variables)
	if types.IsNotFound(err) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.CodeWorkflowNotFound, "Workflow not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromExecution(exec)))
}

// History 查询Workflow的执行历史
// GET /api/v1/workflows/:id/executions?status=
func (h *WorkflowHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	status := execution.Status(c.Query("status"))

	executions, err := h.engine.ListExecutions(ctx, id, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.CodeWorkflowError, err.Error()))
		return
	}

	items := dto.FromExecutions(executions)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ExecutionDTO]{
		Total: len(items),
		Items: items,
	}))
}

// applyWorkflowUpdate 按请求字段增量更新
func applyWorkflowUpdate(wf *workflow.Workflow, req *dto.UpdateWorkflowRequest) {
	if req.Name != "" {
		wf.Name = req.Name
	}
	if req.Description != "" {
		wf.Description = req.Description
	}
	if req.Steps != nil {
		wf.Steps = req.Steps
	}
	if req.Status != "" {
		wf.Status = workflow.Status(req.Status)
	}
}
