package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolInfo 工具信息
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// CallResult 工具调用结果
type CallResult struct {
	IsError bool     `json:"isError"`
	Texts   []string `json:"texts"`
}

// Client 连接 image MCP 服务的客户端
type Client struct {
	endpoint string
	timeout  time.Duration
}

// NewClient 创建客户端，timeout 为单次会话的总超时
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{endpoint: endpoint, timeout: timeout}
}

// withSession 创建MCP会话并执行操作
func (c *Client) withSession(ctx context.Context, fn func(context.Context, *mcp.ClientSession) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "imagectl",
		Version: "dev",
	}, nil)

	transport := &mcp.StreamableClientTransport{
		Endpoint:   c.endpoint,
		HTTPClient: &http.Client{Timeout: c.timeout},
		MaxRetries: 0, // 不重试
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("连接MCP服务失败: %w", err)
	}
	defer session.Close()

	return fn(ctx, session)
}

// ListTools 获取工具列表
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var out []ToolInfo
	err := c.withSession(ctx, func(ctx context.Context, session *mcp.ClientSession) error {
		res, err := session.ListTools(ctx, nil)
		if err != nil {
			return fmt.Errorf("获取工具列表失败: %w", err)
		}

		out = make([]ToolInfo, 0, len(res.Tools))
		for _, tool := range res.Tools {
			info := ToolInfo{Name: tool.Name, Description: tool.Description}
			if tool.InputSchema != nil {
				b, err := json.Marshal(tool.InputSchema)
				if err != nil {
					return fmt.Errorf("序列化 inputSchema 失败: %w", err)
				}
				if err := json.Unmarshal(b, &info.InputSchema); err != nil {
					return fmt.Errorf("解析 inputSchema 失败: %w", err)
				}
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// CallTool 调用工具
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	var out *CallResult
	err := c.withSession(ctx, func(ctx context.Context, session *mcp.ClientSession) error {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		})
		if err != nil {
			return fmt.Errorf("调用工具失败: %w", err)
		}

		out = &CallResult{IsError: res.IsError}
		for _, content := range res.Content {
			switch v := content.(type) {
			case *mcp.TextContent:
				out.Texts = append(out.Texts, v.Text)
			default:
				// 其他类型转为JSON字符串
				b, _ := json.Marshal(v)
				out.Texts = append(out.Texts, string(b))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("MCP 返回空结果")
	}
	return out, nil
}
