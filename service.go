package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/openrouter-image-mcp/configs"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imageinput"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagereply"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagestore"
	"github.com/xpzouying/openrouter-image-mcp/pkg/textutil"
	"github.com/xpzouying/openrouter-image-mcp/pkg/upstream"
)

const editImagesRequired = "at least one image is required to edit!\n\n" +
	"Provide images in one of these formats:\n" +
	"- URL (http:// or https://)\n" +
	"- base64 data URI (data:image/...)\n" +
	"- local file path\n\n" +
	"Examples:\n" +
	"- URL: https://example.com/image.jpg\n" +
	"- local file: C:\\Images\\photo.png\n" +
	"- base64: data:image/jpeg;base64,/9j/4AAQ..."

// UsageError 调用参数错误，在发送任何请求之前返回
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ChatCompleter 上游 chat/completions 接口
type ChatCompleter interface {
	ChatCompletions(ctx context.Context, req openai.ChatCompletionRequest) ([]byte, error)
}

// ImageService 图像生成/编辑服务
type ImageService struct {
	model      string
	client     ChatCompleter
	saveDir    *configs.SaveDirectory
	classifier *imageinput.Classifier
	store      *imagestore.Store
}

// NewImageService 创建服务实例
func NewImageService(model string, client ChatCompleter, saveDir *configs.SaveDirectory, store *imagestore.Store) *ImageService {
	return &ImageService{
		model:      model,
		client:     client,
		saveDir:    saveDir,
		classifier: imageinput.NewClassifier(),
		store:      store,
	}
}

// SaveDirectory 当前保存目录
func (s *ImageService) SaveDirectory() string {
	return s.saveDir.Get()
}

// SetSaveDirectory 修改保存目录，只影响之后开始的调用
func (s *ImageService) SetSaveDirectory(dir string) (string, error) {
	abs, err := s.saveDir.Set(dir)
	if err != nil {
		return "", err
	}
	logrus.Infof("保存目录已修改为: %s", abs)
	return abs, nil
}

// GenerateImage 文本生成图像
func (s *ImageService) GenerateImage(ctx context.Context, prompt string) (*ImageReport, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &UsageError{Message: "prompt must not be empty"}
	}

	// 每次调用只读取一次保存目录
	saveDir := s.saveDir.Get()

	logrus.Infof("生成图像 - 模型: %s, 提示词: %s", s.model, textutil.Abbrev(prompt, 80))

	result, err := s.complete(ctx, upstream.NewImageRequest(s.model, prompt))
	if err != nil {
		return nil, err
	}

	saved := s.store.SaveAll(ctx, result.Images, saveDir, "", false)

	return &ImageReport{
		Operation: OperationGenerate,
		Model:     s.model,
		Prompt:    prompt,
		Text:      result.Text,
		Images:    saved,
		Usage:     result.Usage,
		SaveDir:   saveDir,
	}, nil
}

// EditImage 使用图像模型编辑或分析图像（支持多张图像）
func (s *ImageService) EditImage(ctx context.Context, instruction string, images []string) (*ImageReport, error) {
	if len(images) == 0 {
		return nil, &UsageError{Message: editImagesRequired}
	}
	for i, img := range images {
		if strings.TrimSpace(img) == "" {
			return nil, &UsageError{Message: fmt.Sprintf("image %d is empty\n\n%s", i+1, editImagesRequired)}
		}
	}

	saveDir := s.saveDir.Get()

	logrus.Infof("编辑图像 - 模型: %s, 指令: %s, 输入图像: %d 张", s.model, textutil.Abbrev(instruction, 80), len(images))

	inputs, payloads := s.classifyInputs(images, saveDir)

	result, err := s.complete(ctx, upstream.NewImageRequest(s.model, instruction, payloads...))
	if err != nil {
		return nil, err
	}

	// 第一张输入为本地文件时，结果沿用其文件名
	var baseName string
	if imageinput.IsLocalReference(images[0]) {
		baseName = imageinput.FileStem(images[0])
	}

	saved := s.store.SaveAll(ctx, result.Images, saveDir, baseName, true)

	return &ImageReport{
		Operation: OperationEdit,
		Model:     s.model,
		Prompt:    instruction,
		Inputs:    inputs,
		Text:      result.Text,
		Images:    saved,
		Usage:     result.Usage,
		SaveDir:   saveDir,
	}, nil
}

// classifyInputs 分类每一张输入图像；无法识别的原样转发，由上游给出错误
func (s *ImageService) classifyInputs(images []string, saveDir string) ([]InputSummary, []string) {
	inputs := make([]InputSummary, 0, len(images))
	payloads := make([]string, 0, len(images))

	for _, raw := range images {
		in, err := s.classifier.Classify(raw, saveDir)
		if err != nil {
			logrus.Warnf("处理图像输入 '%s' 失败，原样转发: %v", textutil.Preview(raw, 80), err)
			inputs = append(inputs, InputSummary{
				Source: textutil.Preview(raw, imagestore.PreviewLength),
				Kind:   KindPassthrough,
				Note:   err.Error(),
			})
			payloads = append(payloads, raw)
			continue
		}

		inputs = append(inputs, InputSummary{
			Source: textutil.Preview(raw, imagestore.PreviewLength),
			Kind:   string(in.Kind),
			Path:   in.Path,
		})
		payloads = append(payloads, in.Payload)
	}

	return inputs, payloads
}

// complete 请求上游并规范化回复。请求失败或被取消时不返回任何部分结果。
func (s *ImageService) complete(ctx context.Context, req openai.ChatCompletionRequest) (*imagereply.Result, error) {
	body, err := s.client.ChatCompletions(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "request cancelled")
	}

	logrus.Debugf("API 响应: %s", body)

	result, err := imagereply.Normalize(body)
	if err != nil {
		return nil, err
	}

	logrus.Infof("上游返回文本 %d 字节, 图像 %d 张", len(result.Text), len(result.Images))
	return result, nil
}
