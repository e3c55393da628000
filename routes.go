package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setupRoutes 设置路由配置
func setupRoutes(appServer *AppServer) *gin.Engine {
	// 设置 Gin 模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// 添加中间件
	router.Use(errorHandlingMiddleware())
	router.Use(corsMiddleware())

	// 健康检查
	router.GET("/health", appServer.healthHandler)

	// MCP 端点 - 使用官方 SDK 的 Streamable HTTP Handler
	// 状态都在 AppServer 上，所有请求共用一个 MCP Server
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return appServer.mcpServer
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true, // 支持 JSON 响应
		},
	)
	router.Any("/mcp", gin.WrapH(mcpHandler))
	router.Any("/mcp/*path", gin.WrapH(mcpHandler))

	// API 路由组
	api := router.Group("/api/v1")
	{
		api.POST("/images/generate", appServer.generateImageHandler)
		api.POST("/images/edit", appServer.editImageHandler)
		api.GET("/save_directory", appServer.getSaveDirectoryHandler)
		api.PUT("/save_directory", appServer.setSaveDirectoryHandler)
	}

	return router
}
