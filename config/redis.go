package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig 队列与任务状态共用的 Redis 配置
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	TaskTimeout time.Duration
	StatusTTL   time.Duration
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()

		redisConfig = &RedisConfig{
			Addr:        envString("REDIS_ADDR", "localhost:6379"),
			Password:    envString("REDIS_PASSWORD", ""),
			DB:          envInt("REDIS_DB", 0),
			Concurrency: envInt("WORKER_CONCURRENCY", 5),
			MaxRetries:  envInt("TASK_MAX_RETRIES", 3),
			RetryDelay:  envDuration("TASK_RETRY_DELAY", time.Minute),
			TaskTimeout: envDuration("TASK_TIMEOUT", 30*time.Minute),
			StatusTTL:   envDuration("TASK_STATUS_TTL", 24*time.Hour),
		}
	})
	return redisConfig
}
