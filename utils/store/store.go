// Package store 仿真快照的持久化，支持本地文件、Redis与MongoDB
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound 快照不存在
var ErrNotFound = errors.New("snapshot not found")

// Store 快照存储接口
type Store interface {
	// 保存快照，同一步数的快照被覆盖
	Save(ctx context.Context, snap *schema.Snapshot) error
	// 读取指定步数的快照，不存在时返回包装了ErrNotFound的错误
	Load(ctx context.Context, step int32) (*schema.Snapshot, error)
	// 读取最近保存的快照
	Latest(ctx context.Context) (*schema.Snapshot, error)
	Close() error
}

// New 根据配置创建快照存储
func New(ctx context.Context, c config.Store) (Store, error) {
	switch c.Type {
	case "", "file":
		return NewFileStore(c.Path, c.Prefix)
	case "redis":
		return NewRedisStore(ctx, c.Addr, c.Password, c.DB, c.Prefix)
	case "mongo":
		return NewMongoStore(ctx, c.URI, c.Database, c.Collection, c.Prefix)
	default:
		return nil, fmt.Errorf("unknown store type %q", c.Type)
	}
}

func encode(snap *schema.Snapshot) ([]byte, error) {
	data, err := bson.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot at step %d: %w", snap.Step, err)
	}
	return data, nil
}

func decode(data []byte) (*schema.Snapshot, error) {
	snap := &schema.Snapshot{}
	if err := bson.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
