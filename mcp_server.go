package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// MCP 工具参数结构体定义

// GenerateImageArgs 文本生成图像的参数
type GenerateImageArgs struct {
	Prompt string `json:"prompt" jsonschema:"图像描述，例如：一只可爱的小猫穿着宇航服在月球上行走，科幻风格"`
}

// EditImageArgs 编辑图像的参数
type EditImageArgs struct {
	Instruction string   `json:"instruction" jsonschema:"编辑或分析指令，例如：请将这张图片编辑成一张科幻风格的海报"`
	Images      []string `json:"images" jsonschema:"输入图像列表（至少1张）。支持：1. URL链接 https://example.com/image.jpg；2. base64数据 data:image/jpeg;base64,...；3. 本地文件路径，如 C:\\Images\\photo.png，也可以是保存目录中的文件名"`
}

// SetSaveDirectoryArgs 修改保存目录的参数
type SetSaveDirectoryArgs struct {
	Directory string `json:"directory" jsonschema:"新的图像保存目录，不存在时自动创建"`
}

// InitMCPServer 初始化 MCP Server
func InitMCPServer(appServer *AppServer) *mcp.Server {
	var opts *mcp.ServerOptions
	if appServer.keepAlive > 0 {
		opts = &mcp.ServerOptions{KeepAlive: appServer.keepAlive}
	}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "openrouter-image-mcp",
			Version: "1.0.0",
		},
		opts,
	)

	registerTools(server, appServer)

	logrus.Debug("MCP Server initialized with official SDK")

	return server
}

// registerTools 注册所有 MCP 工具
func registerTools(server *mcp.Server, appServer *AppServer) {
	// 工具 1: 文本生成图像
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "generate_image",
			Description: "文本生成图像，生成的图像会保存到保存目录",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args GenerateImageArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleGenerateImage(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 2: 编辑图像
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "edit_image",
			Description: "使用图像模型编辑或分析图像（支持多张图像）。图像可以是：1) URL链接 2) base64编码数据 3) 本地文件路径",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args EditImageArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleEditImage(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 3: 查看保存目录
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_save_directory",
			Description: "查看当前图像保存目录",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
			result := appServer.handleGetSaveDirectory(ctx)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 4: 修改保存目录
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "set_save_directory",
			Description: "修改图像保存目录，只影响之后开始的调用",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args SetSaveDirectoryArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleSetSaveDirectory(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)
}

// convertToMCPResult 将自定义的 MCPToolResult 转换为官方 SDK 的格式
func convertToMCPResult(result *MCPToolResult) *mcp.CallToolResult {
	var contents []mcp.Content
	for _, c := range result.Content {
		if c.Type == "text" {
			contents = append(contents, &mcp.TextContent{Text: c.Text})
		}
	}

	return &mcp.CallToolResult{
		Content: contents,
		IsError: result.IsError,
	}
}
