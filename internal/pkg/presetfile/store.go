// Package presetfile 以 YAML 文件保存 target 预设，供命令行快速对比使用。
//
// 文件示例：
//
//	presets:
//	  - name: gpt-4o
//	    request_count: 2
//	    target:
//	      label: gpt-4o
//	      provider_url: https://api.openai.com/v1/chat/completions
//	      api_key: sk-...
package presetfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gopkg.in/yaml.v3"

	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/model/dto"
)

type filePreset struct {
	ID           string        `yaml:"id,omitempty"`
	Name         string        `yaml:"name"`
	RequestCount int           `yaml:"request_count,omitempty"`
	Target       dto.LabTarget `yaml:"target"`
	CreatedAt    time.Time     `yaml:"created_at,omitempty"`
	UpdatedAt    time.Time     `yaml:"updated_at,omitempty"`
}

type document struct {
	Presets []filePreset `yaml:"presets"`
}

// Store 单用户的文件存储，userID 参数被忽略
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load 文件不存在时返回空列表。手写文件中缺少 id 的预设按名称补齐
func (s *Store) Load(ctx context.Context, userID int64) ([]*model.SavedPreset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	presets := make([]*model.SavedPreset, len(doc.Presets))
	for i, p := range doc.Presets {
		presets[i] = toModel(p, userID)
	}
	return presets, nil
}

func (s *Store) Save(ctx context.Context, userID int64, preset *model.SavedPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	now := time.Now()
	preset.UserID = userID
	preset.UpdatedAt = now

	if preset.ID == "" {
		preset.ID = uuid.New().String()
		preset.CreatedAt = now
		doc.Presets = append(doc.Presets, fromModel(preset))
		return s.write(doc)
	}

	for i, p := range doc.Presets {
		if presetID(p) == preset.ID {
			preset.CreatedAt = p.CreatedAt
			doc.Presets[i] = fromModel(preset)
			return s.write(doc)
		}
	}
	return fmt.Errorf("preset %s: %w", preset.ID, fs.ErrNotExist)
}

func (s *Store) Delete(ctx context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	for i, p := range doc.Presets {
		if presetID(p) == id {
			doc.Presets = append(doc.Presets[:i], doc.Presets[i+1:]...)
			return s.write(doc)
		}
	}
	return fmt.Errorf("preset %s: %w", id, fs.ErrNotExist)
}

func (s *Store) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse presets file %s: %w", s.path, err)
	}
	return &doc, nil
}

// write 先写临时文件再 rename
func (s *Store) write(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create presets dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write presets file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// presetID 没有 id 的预设以名称作为 id
func presetID(p filePreset) string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

func toModel(p filePreset, userID int64) *model.SavedPreset {
	count := p.RequestCount
	if count == 0 {
		count = 1
	}
	return &model.SavedPreset{
		ID:           presetID(p),
		UserID:       userID,
		Name:         p.Name,
		RequestCount: count,
		Target:       datatypes.NewJSONType(p.Target),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func fromModel(m *model.SavedPreset) filePreset {
	return filePreset{
		ID:           m.ID,
		Name:         m.Name,
		RequestCount: m.RequestCount,
		Target:       m.Target.Data(),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
