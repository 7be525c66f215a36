package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"github.com/bitfantasy/nimo-sales/internal/sales/cache"
	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
	"github.com/bitfantasy/nimo-sales/internal/sales/projection"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// DefaultTableID 未指定表格实例时使用
const DefaultTableID = "default"

// DetailDrawer 详情抽屉，内容总是来自后端而非缓存
type DetailDrawer struct {
	OrderID   int64               `json:"order_id"`
	Order     *entity.SalesOrder  `json:"order"`
	Lifecycle lifecycle.Lifecycle `json:"lifecycle"`
	Actions   lifecycle.Actions   `json:"actions"`
}

func newDrawer(o *entity.SalesOrder) *DetailDrawer {
	lc := lifecycle.ForOrder(o)
	return &DetailDrawer{
		OrderID:   o.ID,
		Order:     o,
		Lifecycle: lc,
		Actions:   lc.Actions(),
	}
}

// TableSession 一个前端表格实例的状态：视图模式、查询缓存、下推弹窗、详情抽屉
type TableSession struct {
	ID      string
	UserID  string
	TableID string

	api    client.SalesOrderAPI
	logger *zap.Logger
	cache  *cache.QueryCache

	// 视图模式同步更新，响应返回时读取当前值
	mode atomic.Value

	mu     sync.Mutex
	last   projection.Result
	drawer *DetailDrawer
	push   map[string]*pushState
}

func newTableSession(userID, tableID string, api client.SalesOrderAPI, logger *zap.Logger) *TableSession {
	s := &TableSession{
		ID:      uuid.New().String(),
		UserID:  userID,
		TableID: tableID,
		api:     api,
		cache:   cache.New(),
		push:    make(map[string]*pushState),
	}
	s.logger = logger.With(zap.String("session_id", s.ID), zap.String("user_id", userID), zap.String("table_id", tableID))
	s.mode.Store(projection.ModeOrder)
	return s
}

// ViewMode 当前视图模式
func (s *TableSession) ViewMode() projection.Mode {
	return s.mode.Load().(projection.Mode)
}

// Cache 查询缓存
func (s *TableSession) Cache() *cache.QueryCache {
	return s.cache
}

// Invalidate 清空查询缓存
func (s *TableSession) Invalidate() {
	s.cache.Invalidate()
}

// OrderIDsForKeys 选中行 key 转订单 ID，依据最近一次投影
func (s *TableSession) OrderIDsForKeys(keys []string) ([]int64, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.OrderIDsForKeys(keys)
}

// CachedOrder 从缓存的列表结果中取订单
func (s *TableSession) CachedOrder(id int64) (*entity.SalesOrder, bool) {
	e, ok := s.cache.Peek()
	if !ok {
		return nil, false
	}
	for i := range e.Orders {
		if e.Orders[i].ID == id {
			o := e.Orders[i]
			return &o, true
		}
	}
	return nil, false
}

// Drawer 当前打开的详情，未打开返回 nil
func (s *TableSession) Drawer() *DetailDrawer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawer
}

func (s *TableSession) openDrawer(o *entity.SalesOrder) *DetailDrawer {
	d := newDrawer(o)
	s.mu.Lock()
	s.drawer = d
	s.mu.Unlock()
	return d
}

// CloseDrawer 关闭详情
func (s *TableSession) CloseDrawer() {
	s.mu.Lock()
	s.drawer = nil
	s.mu.Unlock()
}

func (s *TableSession) drawerOpenFor(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawer != nil && s.drawer.OrderID == id
}

// knownOrder 表格缓存或打开的详情中已有的订单，不发请求
func (s *TableSession) knownOrder(id int64) (*entity.SalesOrder, bool) {
	if o, ok := s.CachedOrder(id); ok {
		return o, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawer != nil && s.drawer.OrderID == id && s.drawer.Order != nil {
		o := *s.drawer.Order
		return &o, true
	}
	return nil, false
}

// resolveOrder 优先使用缓存的列表数据，缺失时向后端取
func (s *TableSession) resolveOrder(ctx context.Context, id int64) (*entity.SalesOrder, error) {
	if o, ok := s.CachedOrder(id); ok {
		return o, nil
	}
	return s.api.GetSalesOrder(ctx, id, true, false)
}

// SessionStore 按 用户+表格 管理会话；容量满时淘汰最久未用的，空闲超时自动回收
type SessionStore struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *TableSession]
	api      client.SalesOrderAPI
	logger   *zap.Logger
}

func NewSessionStore(api client.SalesOrderAPI, cfg config.SessionConfig, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	onEvict := func(key string, s *TableSession) {
		logger.Debug("table session released", zap.String("key", key), zap.String("session_id", s.ID))
	}
	return &SessionStore{
		sessions: expirable.NewLRU[string, *TableSession](cfg.MaxSessions, onEvict, cfg.IdleTTL),
		api:      api,
		logger:   logger,
	}
}

func sessionKey(userID, tableID string) string {
	return userID + "/" + tableID
}

// Get 取会话，不存在或已过期则创建；每次访问都会续期
func (st *SessionStore) Get(userID, tableID string) *TableSession {
	if tableID == "" {
		tableID = DefaultTableID
	}
	key := sessionKey(userID, tableID)

	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions.Get(key)
	if !ok {
		s = newTableSession(userID, tableID, st.api, st.logger)
	}
	// Add 重置过期时间
	st.sessions.Add(key, s)
	return s
}

// InvalidateAll 任何变更后清空所有会话的缓存
func (st *SessionStore) InvalidateAll() {
	for _, s := range st.live() {
		s.Invalidate()
	}
}

// Len 当前存活的会话数
func (st *SessionStore) Len() int {
	return len(st.live())
}

// live 未过期的会话；Values 跳过过期项时尾部留空
func (st *SessionStore) live() []*TableSession {
	all := st.sessions.Values()
	out := all[:0]
	for _, s := range all {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
