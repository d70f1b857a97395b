// Package api HTTP与WebSocket接入层
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/automation-engine/pkg/api/dto"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
)

// 消息通道帧类型
const (
	FrameScheduleCreate = "schedule.create"
	FrameScheduleUpdate = "schedule.update"
	FrameScheduleDelete = "schedule.delete"
	FrameScheduleList   = "schedule.list"
	FrameWorkflowCreate = "workflow.create"
	FrameWorkflowUpdate = "workflow.update"
	FrameWorkflowDelete = "workflow.delete"
	FrameWorkflowList   = "workflow.list"
	FrameWorkflowExec   = "workflow.execute"
	FrameExecConfirm    = "execution.confirm"

	FrameScheduleResponse = "schedule.response"
	FrameWorkflowResponse = "workflow.response"
	FrameExecutionEvent   = "execution.event"
	FrameError            = "error"
)

// Frame 消息通道帧
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outFrame 出站帧，payload为任意可序列化结构
type outFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// errorPayload error帧载荷
type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Channel 持久消息通道（对外导出）
// 远端客户端通过/channel上的WebSocket连接下发CRUD与触发请求，
// 并接收执行生命周期事件推送
type Channel struct {
	engine    *engine.Engine
	scheduler *engine.Scheduler
	upgrader  websocket.Upgrader
}

// NewChannel 创建Channel（对外导出）
func NewChannel(eng *engine.Engine, sched *engine.Scheduler) *Channel {
	return &Channel{
		engine:    eng,
		scheduler: sched,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle 升级连接并进入消息循环
// GET /channel
func (ch *Channel) Handle(c *gin.Context) {
	conn, err := ch.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 写互斥：事件推送goroutine和请求响应共用同一连接
	var writeMu sync.Mutex
	send := func(frame outFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("⚠️ 通道写入失败: %v", err)
		}
	}

	ch.pushEvents(ctx, send)

	log.Printf("✅ 消息通道已建立: %s", conn.RemoteAddr())
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ 消息通道异常关闭: %v", err)
			}
			return
		}
		send(ch.dispatch(ctx, frame))
	}
}

// pushEvents 订阅事件总线并推送execution.event帧
func (ch *Channel) pushEvents(ctx context.Context, send func(outFrame)) {
	events, err := ch.engine.Events().Subscribe(ctx)
	if err != nil {
		log.Printf("⚠️ 事件订阅失败: %v", err)
		return
	}
	go func() {
		for event := range events {
			send(outFrame{Type: FrameExecutionEvent, Payload: event})
		}
	}()
}

// dispatch 按帧类型分发请求
func (ch *Channel) dispatch(ctx context.Context, frame Frame) outFrame {
	switch frame.Type {
	case FrameScheduleCreate:
		return ch.scheduleCreate(ctx, frame.Payload)
	case FrameScheduleUpdate:
		return ch.scheduleUpdate(ctx, frame.Payload)
	case FrameScheduleDelete:
		return ch.scheduleDelete(ctx, frame.Payload)
	case FrameScheduleList:
		return ch.scheduleList(ctx, frame.Payload)
	case FrameWorkflowCreate:
		return ch.workflowCreate(ctx, frame.Payload)
	case FrameWorkflowUpdate:
		return ch.workflowUpdate(ctx, frame.Payload)
	case FrameWorkflowDelete:
		return ch.workflowDelete(ctx, frame.Payload)
	case FrameWorkflowList:
		return ch.workflowList(ctx, frame.Payload)
	case FrameWorkflowExec:
		return ch.workflowExecute(ctx, frame.Payload)
	case FrameExecConfirm:
		return ch.executionConfirm(ctx, frame.Payload)
	default:
		return errFrame(dto.CodeWorkflowError, "未知消息类型: "+frame.Type)
	}
}

// ========== Schedule帧 ==========

func (ch *Channel) scheduleCreate(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		Name           string `json:"name"`
		CronExpression string `json:"cronExpression"`
		Timezone       string `json:"timezone"`
		Prompt         string `json:"prompt"`
		WorkflowID     string `json:"workflowId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeScheduleError, err.Error())
	}

	if _, err := ch.scheduler.CreateSchedule(ctx, req.Name, req.CronExpression, req.Timezone, req.Prompt, req.WorkflowID); err != nil {
		return errFrame(dto.ScheduleErrorCode(err), err.Error())
	}
	return ch.scheduleResponse(ctx, "")
}

func (ch *Channel) scheduleUpdate(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		ScheduleID     string `json:"scheduleId"`
		Name           string `json:"name"`
		CronExpression string `json:"cronExpression"`
		Timezone       string `json:"timezone"`
		Prompt         string `json:"prompt"`
		WorkflowID     string `json:"workflowId"`
		Status         string `json:"status"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeScheduleError, err.Error())
	}

	existing, err := ch.scheduler.GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		if types.IsNotFound(err) {
			return errFrame(dto.CodeScheduleNotFound, "Schedule not found")
		}
		return errFrame(dto.CodeScheduleError, err.Error())
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.CronExpression != "" {
		existing.CronExpression = req.CronExpression
	}
	if req.Timezone != "" {
		existing.Timezone = req.Timezone
	}
	if req.Prompt != "" {
		existing.Prompt = req.Prompt
	}
	if req.WorkflowID != "" {
		existing.WorkflowID = req.WorkflowID
	}
	if req.Status != "" {
		existing.Status = schedule.Status(req.Status)
	}

	found, err := ch.scheduler.UpdateSchedule(ctx, existing)
	if err != nil {
		return errFrame(dto.CodeScheduleError, err.Error())
	}
	if !found {
		return errFrame(dto.CodeScheduleNotFound, "Schedule not found")
	}
	return ch.scheduleResponse(ctx, "")
}

func (ch *Channel) scheduleDelete(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		ScheduleID string `json:"scheduleId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeScheduleError, err.Error())
	}
	if err := ch.scheduler.DeleteSchedule(ctx, req.ScheduleID); err != nil {
		return errFrame(dto.CodeScheduleError, err.Error())
	}
	return ch.scheduleResponse(ctx, "")
}

func (ch *Channel) scheduleList(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		Status string `json:"status"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return errFrame(dto.CodeScheduleError, err.Error())
		}
	}
	return ch.scheduleResponse(ctx, schedule.Status(req.Status))
}

// scheduleResponse 变更后的全量Schedule列表响应
func (ch *Channel) scheduleResponse(ctx context.Context, status schedule.Status) outFrame {
	schedules, err := ch.scheduler.ListSchedules(ctx, status)
	if err != nil {
		return errFrame(dto.CodeScheduleError, err.Error())
	}
	return outFrame{
		Type:    FrameScheduleResponse,
		Payload: gin.H{"schedules": dto.FromSchedules(schedules)},
	}
}

// ========== Workflow帧 ==========

func (ch *Channel) workflowCreate(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Steps       []workflow.Step `json:"steps"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}

	if _, err := ch.engine.CreateWorkflow(ctx, req.Name, req.Description, req.Steps); err != nil {
		return errFrame(dto.WorkflowErrorCode(err), err.Error())
	}
	return ch.workflowListResponse(ctx, "")
}

func (ch *Channel) workflowUpdate(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		WorkflowID  string          `json:"workflowId"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Steps       []workflow.Step `json:"steps"`
		Status      string          `json:"status"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}

	existing, err := ch.engine.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		if types.IsNotFound(err) {
			return errFrame(dto.CodeWorkflowNotFound, "Workflow not found")
		}
		return errFrame(dto.CodeWorkflowError, err.Error())
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if req.Steps != nil {
		existing.Steps = req.Steps
	}
	if req.Status != "" {
		existing.Status = workflow.Status(req.Status)
	}

	found, err := ch.engine.UpdateWorkflow(ctx, existing)
	if err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}
	if !found {
		return errFrame(dto.CodeWorkflowNotFound, "Workflow not found")
	}
	return ch.workflowListResponse(ctx, "")
}

func (ch *Channel) workflowDelete(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		WorkflowID string `json:"workflowId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}
	if err := ch.engine.DeleteWorkflow(ctx, req.WorkflowID); err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}
	return ch.workflowListResponse(ctx, "")
}

func (ch *Channel) workflowList(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		Status string `json:"status"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return errFrame(dto.CodeWorkflowError, err.Error())
		}
	}
	return ch.workflowListResponse(ctx, workflow.Status(req.Status))
}

func (ch *Channel) workflowExecute(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		WorkflowID string                 `json:"workflowId"`
		Variables  map[string]interface{} `json:"variables"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}

	exec, err := ch.engine.TriggerWorkflow(ctx, req.WorkflowID, execution.TriggerManual, req.Variables)
	if err != nil {
		return errFrame(dto.WorkflowErrorCode(err), err.Error())
	}
	return outFrame{
		Type:    FrameWorkflowResponse,
		Payload: gin.H{"execution": dto.FromExecution(exec)},
	}
}

func (ch *Channel) executionConfirm(ctx context.Context, payload json.RawMessage) outFrame {
	var req struct {
		ExecutionID string `json:"executionId"`
		Approved    bool   `json:"approved"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}

	exec, err := ch.engine.ConfirmExecution(ctx, req.ExecutionID, req.Approved)
	if err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}
	return outFrame{
		Type:    FrameWorkflowResponse,
		Payload: gin.H{"execution": dto.FromExecution(exec)},
	}
}

// workflowListResponse 变更后的全量Workflow列表响应
func (ch *Channel) workflowListResponse(ctx context.Context, status workflow.Status) outFrame {
	workflows, err := ch.engine.ListWorkflows(ctx, status)
	if err != nil {
		return errFrame(dto.CodeWorkflowError, err.Error())
	}
	return outFrame{
		Type:    FrameWorkflowResponse,
		Payload: gin.H{"workflows": dto.FromWorkflows(workflows)},
	}
}

func errFrame(code int, message string) outFrame {
	return outFrame{
		Type:    FrameError,
		Payload: errorPayload{Code: code, Message: message},
	}
}
