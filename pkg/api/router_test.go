package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/automation-engine/pkg/api/dto"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/runner"
	"github.com/LENAX/automation-engine/pkg/core/tool"
	"github.com/LENAX/automation-engine/pkg/storage"
	"github.com/LENAX/automation-engine/pkg/storage/sqlite"
)

type apiStubTools struct{}

func (apiStubTools) Invoke(ctx context.Context, name string, args map[string]interface{}, ic tool.InvocationContext) (*tool.Result, error) {
	return &tool.Result{Output: "ok"}, nil
}

func (apiStubTools) RiskOf(name string) (tool.RiskLevel, bool) {
	return tool.RiskLow, true
}

type apiStubPrompts struct{}

func (apiStubPrompts) Complete(ctx context.Context, promptText string) (string, error) {
	return "回答", nil
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := storage.Open(sqlite.NewSQLiteDialect(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repos := store.Repos()
	bus := engine.NewEventBus()
	t.Cleanup(func() { bus.Close() })
	eng := engine.New(repos, runner.New(apiStubTools{}, apiStubPrompts{}, nil), bus)
	t.Cleanup(eng.Close)

	sched := engine.NewScheduler(repos, eng)
	eng.AttachTimers(sched)
	t.Cleanup(sched.Close)

	return SetupRouter(eng, sched, "test")
}

// envelope 通用响应信封（data延迟解析）
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "响应不是合法JSON: %s", rec.Body.String())
	return rec, env
}

func validWorkflowBody() map[string]interface{} {
	return map[string]interface{}{
		"name": "抓取并总结",
		"steps": []map[string]interface{}{
			{"index": 0, "kind": "tool_call", "params": map[string]interface{}{"tool": "web.fetch"}},
		},
	}
}

func TestWorkflowRoutes(t *testing.T) {
	router := setupTestRouter(t)

	// 创建
	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.CodeSuccess, env.Code)

	var created dto.WorkflowDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created.ID)

	// 查询
	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.CodeSuccess, env.Code)

	// 列表
	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.ListResponse[dto.WorkflowDTO]
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)

	// 不存在 → 404 + 8001
	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/workflows/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.CodeWorkflowNotFound, env.Code)

	// 非法定义 → 400 + 8000
	bad := validWorkflowBody()
	bad["steps"] = []map[string]interface{}{
		{"index": 5, "kind": "tool_call", "params": map[string]interface{}{"tool": "x"}},
	}
	rec, env = doJSON(t, router, http.MethodPost, "/api/v1/workflows", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, dto.CodeWorkflowError, env.Code)

	// 删除后查询不到
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowExecuteRoute(t *testing.T) {
	router := setupTestRouter(t)

	_, env := doJSON(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
	var created dto.WorkflowDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+created.ID+"/execute",
		map[string]interface{}{"variables": map[string]interface{}{"city": "北京"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.CodeSuccess, env.Code)

	var exec dto.ExecutionDTO
	require.NoError(t, json.Unmarshal(env.Data, &exec))
	assert.Equal(t, created.ID, exec.WorkflowID)
	assert.Equal(t, "manual", exec.Trigger)

	// 执行异步推进到完成
	require.Eventually(t, func() bool {
		_, env := doJSON(t, router, http.MethodGet, "/api/v1/executions/"+exec.ID, nil)
		var got dto.ExecutionDTO
		if json.Unmarshal(env.Data, &got) != nil {
			return false
		}
		return got.Status == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	// 历史列表
	_, env = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+created.ID+"/executions", nil)
	var history dto.ListResponse[dto.ExecutionDTO]
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Equal(t, 1, history.Total)

	// 不存在的Workflow触发 → 404 + 8001
	rec, env = doJSON(t, router, http.MethodPost, "/api/v1/workflows/no-such-id/execute",
		map[string]interface{}{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.CodeWorkflowNotFound, env.Code)
}

func TestScheduleRoutes(t *testing.T) {
	router := setupTestRouter(t)

	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"name":            "每日早报",
		"cron_expression": "0 8 * * *",
		"timezone":        "Asia/Shanghai",
		"prompt":          "生成早报",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.CodeSuccess, env.Code)

	var created dto.ScheduleDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created.ID)

	// 不存在 → 404 + 6001
	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/schedules/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.CodeScheduleNotFound, env.Code)

	// 非法cron → 400 + 6000
	rec, env = doJSON(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"name":            "坏表达式",
		"cron_expression": "not a cron",
		"prompt":          "p",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, dto.CodeScheduleError, env.Code)

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/schedules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExecutionConfirmRoute_NotAwaiting(t *testing.T) {
	router := setupTestRouter(t)

	_, env := doJSON(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
	var created dto.WorkflowDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))

	_, env = doJSON(t, router, http.MethodPost, "/api/v1/workflows/"+created.ID+"/execute",
		map[string]interface{}{})
	var exec dto.ExecutionDTO
	require.NoError(t, json.Unmarshal(env.Data, &exec))

	require.Eventually(t, func() bool {
		_, env := doJSON(t, router, http.MethodGet, "/api/v1/executions/"+exec.ID, nil)
		var got dto.ExecutionDTO
		return json.Unmarshal(env.Data, &got) == nil && got.Status == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	// 非awaiting_confirmation状态的确认 → 409
	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/executions/"+exec.ID+"/confirm",
		map[string]interface{}{"approved": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthRoute(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test")
}

func TestChannel_WorkflowRoundTrip(t *testing.T) {
	router := setupTestRouter(t)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/channel"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// workflow.create → workflow.response携带全量列表
	payload, _ := json.Marshal(validWorkflowBody())
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameWorkflowCreate, Payload: payload}))

	resp := readFrame(t, conn, FrameWorkflowResponse)
	var listPayload struct {
		Workflows []dto.WorkflowDTO `json:"workflows"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &listPayload))
	require.Len(t, listPayload.Workflows, 1)
	workflowID := listPayload.Workflows[0].ID

	// workflow.execute → workflow.response携带execution
	execPayload, _ := json.Marshal(map[string]interface{}{"workflowId": workflowID})
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameWorkflowExec, Payload: execPayload}))

	resp = readFrame(t, conn, FrameWorkflowResponse)
	var execBody struct {
		Execution dto.ExecutionDTO `json:"execution"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &execBody))
	assert.Equal(t, workflowID, execBody.Execution.WorkflowID)

	// 触发后的生命周期事件被推送
	event := readFrame(t, conn, FrameExecutionEvent)
	assert.Equal(t, FrameExecutionEvent, event.Type)
}

func TestChannel_ErrorFrame(t *testing.T) {
	router := setupTestRouter(t)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/channel"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// 不存在的Workflow触发 → error帧携带8001
	payload, _ := json.Marshal(map[string]interface{}{"workflowId": "no-such-id"})
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameWorkflowExec, Payload: payload}))

	resp := readFrame(t, conn, FrameError)
	var errBody errorPayload
	require.NoError(t, json.Unmarshal(resp.Payload, &errBody))
	assert.Equal(t, dto.CodeWorkflowNotFound, errBody.Code)
}

// readFrame 读取帧直到遇到期望类型（跳过穿插的事件推送）
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == wantType {
			return frame
		}
	}
}
