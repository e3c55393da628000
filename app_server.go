package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// AppServer 应用服务器结构体，封装所有服务和处理器
type AppServer struct {
	imageService *ImageService
	model        string
	keepAlive    time.Duration
	mcpServer    *mcp.Server
	router       *gin.Engine
	httpServer   *http.Server
}

// NewAppServer 创建新的应用服务器实例
func NewAppServer(imageService *ImageService, model string, keepAlive time.Duration) *AppServer {
	appServer := &AppServer{
		imageService: imageService,
		model:        model,
		keepAlive:    keepAlive,
	}

	// 所有 MCP 会话共享同一个 Server，会话由 SDK 按 Mcp-Session-Id 管理
	appServer.mcpServer = InitMCPServer(appServer)
	appServer.router = setupRoutes(appServer)

	return appServer
}

// Start 启动服务器，收到中断信号后优雅退出
func (s *AppServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// 启动服务器的 goroutine
	go func() {
		logrus.Infof("启动 HTTP 服务器: %s (MCP 端点: /mcp)", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("服务器启动失败: %v", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Infof("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Warnf("等待连接关闭超时，强制退出: %v", err)
	} else {
		logrus.Infof("服务器已优雅关闭")
	}

	return nil
}
