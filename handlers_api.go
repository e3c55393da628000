package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// respondError 返回错误响应
func respondError(c *gin.Context, statusCode int, code, message string, details any) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	logrus.Errorf("%s %s %d", c.Request.Method, c.Request.URL.Path, statusCode)

	c.JSON(statusCode, response)
}

// respondSuccess 返回成功响应
func respondSuccess(c *gin.Context, data any, message string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		if respBytes, err := json.Marshal(response); err == nil {
			logrus.Debugf("发送成功响应: %s", string(respBytes))
		}
	}

	logrus.Infof("%s %s %d", c.Request.Method, c.Request.URL.Path, http.StatusOK)

	c.JSON(http.StatusOK, response)
}

// respondServiceError 根据错误类型选择状态码
func respondServiceError(c *gin.Context, code string, err error) {
	var usageErr *UsageError

	// 其余错误（HTTPError、UpstreamError、ErrMalformedResponse、传输失败）都来自上游
	status := http.StatusBadGateway
	switch {
	case errors.As(err, &usageErr):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	respondError(c, status, code, err.Error(), nil)
}

// generateImageHandler 文本生成图像
func (s *AppServer) generateImageHandler(c *gin.Context) {
	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request", err.Error())
		return
	}

	report, err := s.imageService.GenerateImage(c.Request.Context(), req.Prompt)
	if err != nil {
		respondServiceError(c, "GENERATE_IMAGE_FAILED", err)
		return
	}

	respondSuccess(c, ImageReportResponse{ImageReport: report, Report: report.String()}, "image generated")
}

// editImageHandler 编辑图像
func (s *AppServer) editImageHandler(c *gin.Context) {
	var req EditImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request", err.Error())
		return
	}

	report, err := s.imageService.EditImage(c.Request.Context(), req.Instruction, req.Images)
	if err != nil {
		respondServiceError(c, "EDIT_IMAGE_FAILED", err)
		return
	}

	respondSuccess(c, ImageReportResponse{ImageReport: report, Report: report.String()}, "image edited")
}

// getSaveDirectoryHandler 查看保存目录
func (s *AppServer) getSaveDirectoryHandler(c *gin.Context) {
	respondSuccess(c, SaveDirectoryResponse{Directory: s.imageService.SaveDirectory()}, "")
}

// setSaveDirectoryHandler 修改保存目录
func (s *AppServer) setSaveDirectoryHandler(c *gin.Context) {
	var req SaveDirectoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request", err.Error())
		return
	}

	dir, err := s.imageService.SetSaveDirectory(req.Directory)
	if err != nil {
		respondError(c, http.StatusBadRequest, "SET_SAVE_DIRECTORY_FAILED",
			"failed to set save directory", err.Error())
		return
	}

	respondSuccess(c, SaveDirectoryResponse{Directory: dir}, "save directory updated")
}

// healthHandler 健康检查
func (s *AppServer) healthHandler(c *gin.Context) {
	respondSuccess(c, map[string]any{
		"status":  "healthy",
		"service": "openrouter-image-mcp",
		"model":   s.model,
	}, "ok")
}
