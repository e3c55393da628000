package main

// HTTP API 响应类型

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// MCP 相关类型（用于内部转换）

// MCPToolResult MCP 工具结果（内部使用）
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent MCP 内容（内部使用）
type MCPContent struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerateImageRequest 文本生成图像请求
type GenerateImageRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// EditImageRequest 编辑图像请求
type EditImageRequest struct {
	Instruction string   `json:"instruction" binding:"required"`
	Images      []string `json:"images"`
}

// SaveDirectoryRequest 修改保存目录请求
type SaveDirectoryRequest struct {
	Directory string `json:"directory" binding:"required"`
}

// SaveDirectoryResponse 保存目录
type SaveDirectoryResponse struct {
	Directory string `json:"directory"`
}

// ImageReportResponse 生成/编辑结果，同时附带格式化文本
type ImageReportResponse struct {
	*ImageReport
	Report string `json:"report"`
}
