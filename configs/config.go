package configs

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultHTTPReferer = "http://localhost:3000"
	DefaultXTitle      = "OpenRouter Image MCP Server (Go)"
	DefaultPort        = 6621
	DefaultSaveDir     = "./generated_images"

	// DefaultModel 可替换为任意兼容 chat/completions 的图像模型，
	// 如 nano-banana、gpt-4o-image、google/gemini-3-pro-image-preview
	DefaultModel = "google/gemini-2.5-flash-preview-06-17"
)

// 环境变量
const (
	EnvAPIKey       = "OPENROUTER_API_KEY"
	EnvBaseURL      = "OPENROUTER_BASE_URL"
	EnvHTTPReferer  = "HTTP_REFERER"
	EnvXTitle       = "X_TITLE"
	EnvPort         = "MCP_HTTP_PORT"
	EnvModel        = "MCP_MODEL"
	EnvSaveDir      = "MCP_SAVE_DIR"
	EnvSSEKeepAlive = "MCP_SSE_KEEP_ALIVE_SECS"
)

// Config 服务配置。优先级：命令行参数 > 环境变量 > 默认值
type Config struct {
	APIKey      string
	BaseURL     string
	HTTPReferer string
	XTitle      string
	Port        int
	Model       string
	SaveDir     string
	LogLevel    string

	// KeepAlive 为 0 时不发送 ping
	KeepAlive time.Duration
}

// Addr HTTP 监听地址
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// LoadDotEnv 加载当前目录下的 .env，不存在时忽略
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("未找到 .env 文件，使用系统环境变量")
	}
}

// Load 解析命令行参数与环境变量
func Load(args []string) (*Config, error) {
	var (
		apiKey   string
		model    string
		saveDir  string
		port     int
		logLevel string
	)

	fs := flag.NewFlagSet("openrouter-image-mcp", flag.ContinueOnError)
	fs.StringVar(&apiKey, "api-key", "", "OpenRouter API key，也可通过 "+EnvAPIKey+" 设置")
	fs.StringVar(&model, "model", "", "图像模型名称，也可通过 "+EnvModel+" 设置")
	fs.StringVar(&saveDir, "save-dir", "", "图像保存目录，也可通过 "+EnvSaveDir+" 设置")
	fs.IntVar(&port, "port", 0, "HTTP 端口，也可通过 "+EnvPort+" 设置")
	fs.StringVar(&logLevel, "log-level", "info", "日志级别: debug/info/warn/error")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse flags")
	}

	cfg := &Config{
		APIKey:      firstNonEmpty(apiKey, os.Getenv(EnvAPIKey)),
		BaseURL:     firstNonEmpty(os.Getenv(EnvBaseURL), DefaultBaseURL),
		HTTPReferer: firstNonEmpty(os.Getenv(EnvHTTPReferer), DefaultHTTPReferer),
		XTitle:      firstNonEmpty(os.Getenv(EnvXTitle), DefaultXTitle),
		Model:       firstNonEmpty(model, os.Getenv(EnvModel), DefaultModel),
		SaveDir:     firstNonEmpty(saveDir, os.Getenv(EnvSaveDir), DefaultSaveDir),
		Port:        port,
		LogLevel:    logLevel,
	}

	if cfg.APIKey == "" {
		return nil, errors.Errorf("%s environment variable or --api-key flag is required", EnvAPIKey)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
		if v := os.Getenv(EnvPort); v != "" {
			if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
				cfg.Port = p
			} else {
				logrus.Warnf("%s=%q 无效，使用默认端口 %d", EnvPort, v, DefaultPort)
			}
		}
	}

	if v := os.Getenv(EnvSSEKeepAlive); v != "" {
		if secs, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.KeepAlive = time.Duration(secs) * time.Second
		}
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
