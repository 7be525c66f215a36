package service

import (
	"context"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/sse"
	"go.uber.org/zap"
)

// Notifier 前端提示与变更广播
type Notifier interface {
	Notify(userID string, n sse.Notice)
	PublishOrderChanged(orderIDs []int64, action string)
}

// PushLogWriter 下推审计
type PushLogWriter interface {
	Create(ctx context.Context, log *entity.PushLog) error
}

// Services 服务集合
type Services struct {
	Sessions *SessionStore
	Order    *OrderService
	Push     *PushService
}

// Options 服务依赖；Notifier、PushLogs、Guard 可为空
type Options struct {
	API      client.SalesOrderAPI
	Notifier Notifier
	PushLogs PushLogWriter
	Guard    Guard
	Session  config.SessionConfig
	Logger   *zap.Logger
}

// NewServices 创建服务集合
func NewServices(opts Options) *Services {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Guard == nil {
		opts.Guard = NewLocalGuard()
	}
	sessions := NewSessionStore(opts.API, opts.Session, opts.Logger)
	return &Services{
		Sessions: sessions,
		Order:    NewOrderService(opts.API, sessions, opts.Notifier, opts.Logger),
		Push:     NewPushService(opts.API, sessions, opts.Guard, opts.PushLogs, opts.Notifier, opts.Logger),
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, sse.Notice) {}
func (nopNotifier) PublishOrderChanged([]int64, string) {}
