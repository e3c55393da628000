package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/xpzouying/openrouter-image-mcp/configs"
	"github.com/xpzouying/openrouter-image-mcp/pkg/downloader"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagestore"
	"github.com/xpzouying/openrouter-image-mcp/pkg/upstream"
)

func main() {
	configs.LoadDotEnv()

	cfg, err := configs.Load(os.Args[1:])
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	saveDir, err := configs.NewSaveDirectory(cfg.SaveDir)
	if err != nil {
		logrus.Fatalf("初始化保存目录失败: %v", err)
	}

	client := upstream.NewClient(upstream.Options{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		HTTPReferer: cfg.HTTPReferer,
		XTitle:      cfg.XTitle,
	})
	store := imagestore.New(downloader.NewImageDownloader())

	// 初始化服务
	imageService := NewImageService(cfg.Model, client, saveDir, store)

	logrus.Infof("模型: %s, 上游: %s, 保存目录: %s", cfg.Model, cfg.BaseURL, saveDir.Get())

	// 创建并启动应用服务器
	appServer := NewAppServer(imageService, cfg.Model, cfg.KeepAlive)
	if err := appServer.Start(cfg.Addr()); err != nil {
		logrus.Fatalf("failed to run server: %v", err)
	}
}
