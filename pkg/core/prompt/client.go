// Package prompt 提供裸Prompt派发能力：把单条Prompt发给
// OpenAI兼容的推理后端并取回回答（sub_prompt步骤和无Workflow的
// Schedule触发走此路径）
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Dispatcher 裸Prompt派发接口（对外导出，Step Runner依赖此接口）
type Dispatcher interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

// ClientConfig 推理后端配置
type ClientConfig struct {
	BackendURL  string        // OpenAI兼容API地址（不含路径，如 https://api.example.com/v1）
	APIKey      string        // Bearer密钥，可为空
	Model       string        // 默认模型名
	Temperature float64       // 采样温度
	MaxTokens   int           // 单次回答token上限
	Timeout     time.Duration // 单次请求超时
}

// Client OpenAI兼容chat completions客户端（对外导出）
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient 创建推理客户端（对外导出）
func NewClient(cfg ClientConfig) *Client {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// message chat消息
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest chat completions请求体
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// completionResponse chat completions响应体（只取需要的字段）
type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// maxRetries 400重试次数
// 部分聚合后端路由到不支持该请求形态的实例时会间歇性返回400，重试可绕开
const maxRetries = 2

// Complete 派发单条Prompt并返回回答文本（对外导出）
func (c *Client) Complete(ctx context.Context, promptText string) (string, error) {
	payload := completionRequest{
		Model:       c.cfg.Model,
		Messages:    []message{{Role: "user", Content: promptText}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	var lastStatus int
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BackendURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("构建请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("推理后端请求失败: %w", err)
		}

		if resp.StatusCode == http.StatusBadRequest && attempt < maxRetries {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			log.Printf("⚠️ [推理客户端] 后端返回400 (第%d/%d次): %s", attempt+1, maxRetries+1, respBody)
			lastStatus = resp.StatusCode
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
			}
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return "", fmt.Errorf("推理后端返回 %d: %s", resp.StatusCode, respBody)
		}

		var result completionResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("解析响应失败: %w", err)
		}
		if len(result.Choices) == 0 {
			return "", fmt.Errorf("推理后端未返回任何choices")
		}
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("重试次数已耗尽，最后状态码 %d", lastStatus)
}
