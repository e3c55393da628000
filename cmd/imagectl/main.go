// imagectl 是 openrouter-image-mcp 的命令行客户端，通过 MCP 协议调用服务端工具。
//
//	imagectl tools
//	imagectl generate -prompt "a cat in space"
//	imagectl edit -instruction "make it a poster" -image ./cat.png -image https://example.com/b.jpg
//	imagectl dir [-set ./out]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// stringList 可重复的字符串参数
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)

	var (
		endpoint    string
		timeout     time.Duration
		prompt      string
		instruction string
		setDir      string
		images      stringList
	)
	fs.StringVar(&endpoint, "endpoint", envOr("IMAGECTL_ENDPOINT", "http://127.0.0.1:6621/mcp"), "MCP 服务地址")
	fs.DurationVar(&timeout, "timeout", 5*time.Minute, "调用超时")

	switch command {
	case "generate":
		fs.StringVar(&prompt, "prompt", "", "图像描述")
	case "edit":
		fs.StringVar(&instruction, "instruction", "", "编辑指令")
		fs.Var(&images, "image", "输入图像（URL、data URI 或本地路径），可重复")
	case "dir":
		fs.StringVar(&setDir, "set", "", "新的保存目录")
	case "tools":
	default:
		usage()
		return fmt.Errorf("未知命令: %s", command)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	client := NewClient(endpoint, timeout)

	switch command {
	case "tools":
		tools, err := client.ListTools(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	case "generate":
		return callAndPrint(ctx, client, "generate_image", map[string]any{"prompt": prompt})
	case "edit":
		return callAndPrint(ctx, client, "edit_image", map[string]any{
			"instruction": instruction,
			"images":      []string(images),
		})
	default:
		if setDir != "" {
			return callAndPrint(ctx, client, "set_save_directory", map[string]any{"directory": setDir})
		}
		return callAndPrint(ctx, client, "get_save_directory", map[string]any{})
	}
}

func callAndPrint(ctx context.Context, client *Client, tool string, args map[string]any) error {
	res, err := client.CallTool(ctx, tool, args)
	if err != nil {
		return err
	}

	for _, text := range res.Texts {
		fmt.Println(text)
	}
	if res.IsError {
		return fmt.Errorf("%s 返回错误", tool)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintln(os.Stderr, `用法: imagectl <tools|generate|edit|dir> [参数]

  tools                                   列出服务端工具
  generate -prompt TEXT                   文本生成图像
  edit -instruction TEXT -image SRC ...   编辑图像
  dir [-set DIR]                          查看或修改保存目录`)
}
