package main

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MCP 工具处理函数

// handleGenerateImage 处理文本生成图像
func (s *AppServer) handleGenerateImage(ctx context.Context, args GenerateImageArgs) *MCPToolResult {
	logrus.Info("MCP: 生成图像")

	report, err := s.imageService.GenerateImage(ctx, args.Prompt)
	if err != nil {
		logrus.Errorf("生成图像失败: %v", err)
		return errorResult("generate_image failed: " + err.Error())
	}

	return textResult(report.String())
}

// handleEditImage 处理编辑图像
func (s *AppServer) handleEditImage(ctx context.Context, args EditImageArgs) *MCPToolResult {
	logrus.Infof("MCP: 编辑图像 - 输入图像: %d 张", len(args.Images))

	report, err := s.imageService.EditImage(ctx, args.Instruction, args.Images)
	if err != nil {
		logrus.Errorf("编辑图像失败: %v", err)
		return errorResult("edit_image failed: " + err.Error())
	}

	return textResult(report.String())
}

// handleGetSaveDirectory 处理查看保存目录
func (s *AppServer) handleGetSaveDirectory(ctx context.Context) *MCPToolResult {
	return textResult("Current save directory: " + s.imageService.SaveDirectory())
}

// handleSetSaveDirectory 处理修改保存目录
func (s *AppServer) handleSetSaveDirectory(ctx context.Context, args SetSaveDirectoryArgs) *MCPToolResult {
	logrus.Infof("MCP: 修改保存目录 - %s", args.Directory)

	dir, err := s.imageService.SetSaveDirectory(args.Directory)
	if err != nil {
		return errorResult("set_save_directory failed: " + err.Error())
	}

	return textResult("Save directory set to: " + dir)
}

func textResult(text string) *MCPToolResult {
	return &MCPToolResult{
		Content: []MCPContent{{
			Type: "text",
			Text: text,
		}},
	}
}

func errorResult(text string) *MCPToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}
