package configs

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// SaveDirectory 进程级的图像保存目录。
// 读取方拿到的是一份完整的路径拷贝，更新时整体替换，不持有锁做 I/O。
type SaveDirectory struct {
	v atomic.Pointer[string]
}

// NewSaveDirectory 创建保存目录状态
func NewSaveDirectory(dir string) (*SaveDirectory, error) {
	s := &SaveDirectory{}
	if _, err := s.Set(dir); err != nil {
		return nil, err
	}
	return s, nil
}

// Get 返回当前目录
func (s *SaveDirectory) Get() string {
	if p := s.v.Load(); p != nil {
		return *p
	}
	return ""
}

// Set 校验并替换目录，目录不存在时创建。返回规范化后的绝对路径。
func (s *SaveDirectory) Set(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("save directory must not be empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", dir)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create save directory %s", abs)
	}

	s.v.Store(&abs)
	return abs, nil
}
