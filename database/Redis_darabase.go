package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// OpenRedis 连接 Redis；addr 为空或连接失败时返回 nil，调用方进入降级模式
func OpenRedis(ctx context.Context, addr, password string, db int, logger *zap.Logger) *redis.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == "" {
		logger.Info("未配置 Redis，使用内存降级模式")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis连接失败，将使用降级模式", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}

	logger.Info("Redis连接成功", zap.String("addr", addr))
	return client
}
