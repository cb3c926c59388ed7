package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tsinghua-fib-lab/microsim/schema"
)

// FileStore 本地目录中的快照，每步一个BSON文件，另有latest文件记录最近的步数
type FileStore struct {
	dir    string
	prefix string
}

func NewFileStore(dir, prefix string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir, prefix: prefix}, nil
}

func (s *FileStore) path(step int32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%d.bson", s.prefix, step))
}

func (s *FileStore) latestPath() string {
	return filepath.Join(s.dir, s.prefix+"-latest")
}

// Save 先写临时文件再改名，中断时不会留下半个快照
func (s *FileStore) Save(ctx context.Context, snap *schema.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	path := s.path(snap.Step)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	if err := os.WriteFile(s.latestPath(), []byte(strconv.Itoa(int(snap.Step))), 0o644); err != nil {
		return err
	}
	log.Debugf("save snapshot %s", path)
	return nil
}

func (s *FileStore) Load(ctx context.Context, step int32) (*schema.Snapshot, error) {
	data, err := os.ReadFile(s.path(step))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("step %d: %w", step, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *FileStore) Latest(ctx context.Context) (*schema.Snapshot, error) {
	data, err := os.ReadFile(s.latestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("latest: %w", ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	step, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("bad latest file %s: %w", s.latestPath(), err)
	}
	return s.Load(ctx, int32(step))
}

func (s *FileStore) Close() error {
	return nil
}
