// Package client 自动化引擎HTTP API的命令行客户端
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/LENAX/automation-engine/pkg/api/dto"
)

// Client HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Workflow API ==========

// ListWorkflows 列出所有Workflow
func (c *Client) ListWorkflows(status string) (*dto.ListResponse[dto.WorkflowDTO], error) {
	path := "/api/v1/workflows" + statusQuery(status)
	var resp dto.APIResponse[dto.ListResponse[dto.WorkflowDTO]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetWorkflow 获取Workflow详情
func (c *Client) GetWorkflow(id string) (*dto.WorkflowDTO, error) {
	var resp dto.APIResponse[dto.WorkflowDTO]
	if err := c.get("/api/v1/workflows/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// DeleteWorkflow 删除Workflow
func (c *Client) DeleteWorkflow(id string) error {
	var resp dto.APIResponse[any]
	if err := c.delete("/api/v1/workflows/"+id, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ExecuteWorkflow 触发Workflow执行
func (c *Client) ExecuteWorkflow(id string, variables map[string]interface{}) (*dto.ExecutionDTO, error) {
	req := dto.ExecuteWorkflowRequest{Variables: variables}
	var resp dto.APIResponse[dto.ExecutionDTO]
	if err := c.post("/api/v1/workflows/"+id+"/execute", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Schedule API ==========

// ListSchedules 列出所有Schedule
func (c *Client) ListSchedules(status string) (*dto.ListResponse[dto.ScheduleDTO], error) {
	path := "/api/v1/schedules" + statusQuery(status)
	var resp dto.APIResponse[dto.ListResponse[dto.ScheduleDTO]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// DeleteSchedule 删除Schedule
func (c *Client) DeleteSchedule(id string) error {
	var resp dto.APIResponse[any]
	if err := c.delete("/api/v1/schedules/"+id, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== Execution API ==========

// ListExecutions 列出Execution
func (c *Client) ListExecutions(workflowID, status string) (*dto.ListResponse[dto.ExecutionDTO], error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflow_id", workflowID)
	}
	if status != "" {
		params.Set("status", status)
	}
	path := "/api/v1/executions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.ExecutionDTO]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetExecution 获取Execution详情
func (c *Client) GetExecution(id string) (*dto.ExecutionDTO, error) {
	var resp dto.APIResponse[dto.ExecutionDTO]
	if err := c.get("/api/v1/executions/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ConfirmExecution 提交确认结果
func (c *Client) ConfirmExecution(id string, approved bool) (*dto.ExecutionDTO, error) {
	req := dto.ConfirmExecutionRequest{Approved: approved}
	var resp dto.APIResponse[dto.ExecutionDTO]
	if err := c.post("/api/v1/executions/"+id+"/confirm", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP helpers ==========

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp.Body, out)
}

func (c *Client) post(path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp.Body, out)
}

func (c *Client) delete(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp.Body, out)
}

func decode(body io.Reader, out interface{}) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

func statusQuery(status string) string {
	if status == "" {
		return ""
	}
	return "?status=" + url.QueryEscape(status)
}
