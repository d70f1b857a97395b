package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// BuiltinConfig 内置工具配置
type BuiltinConfig struct {
	// OutboundURL 出站消息网关地址（mail.send/chat.send投递目标）
	// 为空时消息工具仅记录日志并回显参数（开发模式）
	OutboundURL string
	HTTPTimeout time.Duration
}

// RegisterBuiltins 注册内置工具（对外导出）
// 进程入口启动时调用一次
func RegisterBuiltins(r *Registry, cfg BuiltinConfig) error {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	client := &http.Client{Timeout: cfg.HTTPTimeout}

	defs := []*Definition{
		{
			Name:        "web.fetch",
			Description: "抓取URL内容，返回响应体文本",
			Risk:        RiskLow,
			Timeout:     cfg.HTTPTimeout,
			Handler:     webFetchHandler(client),
		},
		{
			Name:        "web.extract",
			Description: "用CSS选择器从HTML中提取文本",
			Risk:        RiskLow,
			Handler:     webExtractHandler,
		},
		{
			Name:        "mail.send",
			Description: "发送邮件（经出站网关）",
			Risk:        RiskHigh,
			Timeout:     cfg.HTTPTimeout,
			Handler:     outboundHandler(client, cfg.OutboundURL, "mail"),
		},
		{
			Name:        "chat.send",
			Description: "发送即时消息（经出站网关）",
			Risk:        RiskHigh,
			Timeout:     cfg.HTTPTimeout,
			Handler:     outboundHandler(client, cfg.OutboundURL, "chat"),
		},
	}

	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("注册内置工具失败: %w", err)
		}
	}
	return nil
}

// webFetchHandler HTTP GET抓取
func webFetchHandler(client *http.Client) Handler {
	return func(ctx context.Context, args map[string]interface{}) (*Result, error) {
		url, _ := args["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("缺少url参数")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("构建请求失败: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("请求失败: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("目标返回 %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("读取响应失败: %w", err)
		}

		return &Result{
			Output: string(body),
			Usage:  Usage{Tokens: len(body) / 4},
		}, nil
	}
}

// webExtractHandler goquery选择器提取
func webExtractHandler(ctx context.Context, args map[string]interface{}) (*Result, error) {
	html, _ := args["html"].(string)
	selector, _ := args["selector"].(string)
	if html == "" || selector == "" {
		return nil, fmt.Errorf("缺少html或selector参数")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	var texts []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(sel.Text()))
	})

	return &Result{Output: texts}, nil
}

// outboundHandler 出站消息投递（mail/chat共用）
func outboundHandler(client *http.Client, outboundURL, channel string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (*Result, error) {
		if outboundURL == "" {
			// 开发模式：无网关时回显
			log.Printf("⚠️ [内置工具] 未配置出站网关，%s消息未投递: %v", channel, args)
			return &Result{Output: map[string]interface{}{"delivered": false, "echo": args}}, nil
		}

		payload := map[string]interface{}{
			"channel": channel,
			"message": args,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化消息失败: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, outboundURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("构建请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("投递失败: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("出站网关返回 %d", resp.StatusCode)
		}

		return &Result{
			Output: map[string]interface{}{"delivered": true},
			Usage:  Usage{Credits: 1},
		}, nil
	}
}
