package main

import (
	"fmt"
	"strings"

	"github.com/xpzouying/openrouter-image-mcp/pkg/imagereply"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagestore"
)

const (
	OperationGenerate = "generate_image"
	OperationEdit     = "edit_image"

	// KindPassthrough 无法识别、原样转发给上游的输入
	KindPassthrough = "passthrough"
)

// InputSummary 一张输入图像的分类结果（仅编辑）
type InputSummary struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Path   string `json:"path,omitempty"`
	Note   string `json:"note,omitempty"`
}

// ImageReport 一次生成/编辑调用的结果
type ImageReport struct {
	Operation string                  `json:"operation"`
	Model     string                  `json:"model"`
	Prompt    string                  `json:"prompt"`
	Inputs    []InputSummary          `json:"inputs,omitempty"`
	Text      string                  `json:"text"`
	Images    []imagestore.SavedImage `json:"images"`
	Usage     *imagereply.Usage       `json:"usage,omitempty"`
	SaveDir   string                  `json:"save_dir"`
}

// String 格式化为返回给调用方的文本
func (r *ImageReport) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Model:** %s\n", r.Model)
	if r.Operation == OperationEdit {
		fmt.Fprintf(&b, "**Instruction:** %s\n", r.Prompt)
		fmt.Fprintf(&b, "**Input images:** %d images\n", len(r.Inputs))
		for i, in := range r.Inputs {
			fmt.Fprintf(&b, "- input %d: %s", i+1, in.Kind)
			if in.Path != "" {
				fmt.Fprintf(&b, " (%s)", in.Path)
			}
			if in.Note != "" {
				fmt.Fprintf(&b, ", forwarded as-is: %s", in.Note)
			}
			b.WriteString("\n")
		}
	} else {
		fmt.Fprintf(&b, "**Prompt:** %s\n", r.Prompt)
	}
	fmt.Fprintf(&b, "**Response:** %s", r.Text)

	if len(r.Images) > 0 {
		fmt.Fprintf(&b, "\n\n**Generated images:** %d images", len(r.Images))
		for i, img := range r.Images {
			fmt.Fprintf(&b, "\n- image %d: %s...", i+1, img.SourcePreview)
			if img.Saved() {
				fmt.Fprintf(&b, " ; saved to %s", img.SavedPath)
				if img.Diagnostic != "" {
					fmt.Fprintf(&b, " (%s)", img.Diagnostic)
				}
			} else {
				fmt.Fprintf(&b, " ; not saved: %s", img.Diagnostic)
			}
		}
	}

	if r.Usage != nil {
		fmt.Fprintf(&b, "\n\n**Usage:**\n- prompt tokens: %d\n- completion tokens: %d\n- total tokens: %d",
			r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.TotalTokens)
	}

	return b.String()
}
