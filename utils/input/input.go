package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Input 输入数据
// 功能：存储仿真所需的路网与场景，支持从文件或MongoDB加载
type Input struct {
	Network  schema.Network
	Scenario schema.Scenario
}

// Init 加载输入数据
// 功能：根据配置加载路网与场景，并在返回前完成校验
// 参数：ctx-上下文，c-输入配置，cacheDir-MongoDB数据的本地缓存目录（为空则不缓存）
// 返回：加载完成的输入数据；校验失败时返回*entity.ScenarioLoadError
// 算法说明：
// 1. 指定了文件的部分直接从文件读取
// 2. 其余部分从MongoDB读取，优先使用缓存，下载后写入缓存
// 3. 校验路网与场景的一致性
func Init(ctx context.Context, c config.Input, cacheDir string) (*Input, error) {
	useCache := preCheckCache(cacheDir)
	if !useCache {
		cacheDir = ""
	}

	var client *mongo.Client
	if c.URI != "" && (c.Network.File == "" || c.Scenario.File == "") {
		var err error
		if client, err = Connect(ctx, c.URI); err != nil {
			return nil, err
		}
		defer client.Disconnect(context.Background())
	}

	res := &Input{}
	if err := load(ctx, client, c.Network, cacheDir, &res.Network); err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}
	if err := load(ctx, client, c.Scenario, cacheDir, &res.Scenario); err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	log.Infof("Lane: %v", len(res.Network.Lanes))
	log.Infof("Turn: %v", len(res.Network.Turns))
	log.Infof("Intersection: %v", len(res.Network.Intersections))
	log.Infof("Stop: %v", len(res.Network.Stops))
	log.Infof("Trip: %v", len(res.Scenario.Trips))
	log.Infof("TransitRoute: %v", len(res.Scenario.TransitRoutes))
	if err := Validate(res.Network, res.Scenario); err != nil {
		return nil, err
	}
	return res, nil
}

// Connect 连接MongoDB，连接失败时按指数退避重试
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(
		func() error { return client.Ping(ctx, nil) },
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) { log.Warnf("ping mongo failed, retry in %v: %v", d, err) },
	)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// load 读取一个输入
// 功能：文件优先；否则从MongoDB集合的第一个文档解码，并使用本地BSON缓存
func load[T any](ctx context.Context, client *mongo.Client, p config.InputPath, cacheDir string, out *T) error {
	if p.File != "" {
		return ReadFile(p.File, out)
	}
	if p.DB == "" || p.Col == "" {
		return errors.New("neither file nor db/col is specified")
	}
	cachePath := ""
	if cacheDir != "" {
		cachePath = filepath.Join(cacheDir, p.GetCachePath())
		if err := readBSON(cachePath, out); err == nil {
			log.Infof("load %s.%s from cache %s", p.DB, p.Col, cachePath)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("ignore bad cache %s: %v", cachePath, err)
		}
	}
	if p.OnlyCache {
		return fmt.Errorf("no cache for %s.%s", p.DB, p.Col)
	}
	if client == nil {
		return fmt.Errorf("%s.%s needs input.uri", p.DB, p.Col)
	}
	log.Infof("start fetching from %s.%s", p.DB, p.Col)
	coll := client.Database(p.DB).Collection(p.Col)
	if err := coll.FindOne(ctx, bson.M{}).Decode(out); err != nil {
		return fmt.Errorf("fetch %s.%s: %w", p.DB, p.Col, err)
	}
	log.Infof("finish fetching from %s.%s", p.DB, p.Col)
	if cachePath != "" {
		if err := writeBSON(cachePath, out); err != nil {
			log.Warnf("failed to write cache %s: %v", cachePath, err)
		}
	}
	return nil
}
