package oss

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qs3c/ailab_server/config"
)

const localScheme = "local://"

// LocalArchiver 未配置 OSS 时把报告写到本地目录
type LocalArchiver struct {
	Dir string
}

func NewLocalArchiver(dir string) *LocalArchiver {
	return &LocalArchiver{Dir: dir}
}

func (a *LocalArchiver) ArchiveReport(experimentID string, data []byte) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}

	name := experimentID + ".json"
	if err := os.WriteFile(filepath.Join(a.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return localScheme + name, nil
}

// DeleteReport 文件不存在视为成功
func (a *LocalArchiver) DeleteReport(url string) error {
	name, ok := strings.CutPrefix(url, localScheme)
	if !ok || name == "" || filepath.Base(name) != name {
		return fmt.Errorf("not a local report url: %s", url)
	}

	err := os.Remove(filepath.Join(a.Dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// Open 按配置选择归档方式：配置了 OSS bucket 用 OSS，否则落本地
func Open(ossCfg *config.OSSConfig, localDir string) (ReportArchiver, error) {
	if ossCfg.BucketName == "" || ossCfg.Endpoint == "" {
		return NewLocalArchiver(localDir), nil
	}
	client, err := NewClient(ossCfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}
