package input

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v2"
)

// ReadFile 按扩展名读取YAML或BSON文件
func ReadFile(path string, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.UnmarshalStrict(data, out); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	case ".bson":
		return readBSON(path, out)
	default:
		return fmt.Errorf("unsupported input file %s (want .yaml, .yml or .bson)", path)
	}
}

func readBSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeBSON(path string, v any) error {
	data, err := bson.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// preCheckCache 预检查缓存目录
// 返回：true表示启用缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Debug("disable input cache")
		return false
	}
	if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
		log.Infof("enable input cache at %s", cacheDir)
		return true
	}
	log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
	return false
}
