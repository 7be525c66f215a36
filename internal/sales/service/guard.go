package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// Guard 下推防重：同一订单同一目标同时只允许一个确认请求
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalGuard 进程内防重
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrPushInFlight
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// Held 是否正在进行
func (g *LocalGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

// RedisGuard 多实例部署时的分布式防重，先取本地锁再取 redis 锁
type RedisGuard struct {
	locker *redislock.Client
	local  *LocalGuard
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisGuard(locker *redislock.Client, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGuard{locker: locker, local: NewLocalGuard(), ttl: ttl, logger: logger}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	releaseLocal, err := g.local.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	lock, err := g.locker.Obtain(ctx, "lock:sales-push:"+key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		releaseLocal()
		return nil, ErrPushInFlight
	}
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("获取下推锁失败: %w", err)
	}

	return func() {
		// 请求 context 可能已取消，释放锁不依赖它
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.logger.Warn("release push lock failed", zap.String("key", key), zap.Error(err))
		}
		releaseLocal()
	}, nil
}
