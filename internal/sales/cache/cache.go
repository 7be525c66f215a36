// Package cache holds the single-slot query result cache of a sales order
// table. It stores the unprojected server response so that switching views
// re-projects locally instead of fetching again.
package cache

import (
	"encoding/json"
	"sync"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
)

// Params 参与缓存 key 的查询参数；视图模式不在其中
type Params struct {
	Skip         int    `json:"skip"`
	Limit        int    `json:"limit"`
	Status       string `json:"status"`
	CustomerName string `json:"customer_name"`
	OrderBy      string `json:"order_by"`
}

// Key 稳定序列化，字段顺序固定
func (p Params) Key() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// Entry 未投影的服务端响应
type Entry struct {
	Orders    []entity.SalesOrder
	Total     int64
	ParamsKey string
}

// Ticket 一次拉取的凭证，响应回来时用于判断是否已过期
type Ticket struct {
	Key        string
	Generation uint64
}

// QueryCache 单槽缓存，后写覆盖
type QueryCache struct {
	mu         sync.Mutex
	entry      *Entry
	generation uint64
	pending    string
}

func New() *QueryCache {
	return &QueryCache{}
}

// Get 命中时返回同一个 Entry 指针
func (c *QueryCache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || c.entry.ParamsKey != key {
		return nil, false
	}
	return c.entry, true
}

// Serve 命中读取；其他 key 的在途请求随之过期，迟到的响应不会覆盖槽位
func (c *QueryCache) Serve(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || c.entry.ParamsKey != key {
		return nil, false
	}
	if c.pending != "" && c.pending != key {
		c.generation++
		c.pending = ""
	}
	return c.entry, true
}

// Peek 返回当前槽内容，不论 key
func (c *QueryCache) Peek() (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry, c.entry != nil
}

// Set 直接写入
func (c *QueryCache) Set(key string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.ParamsKey = key
	c.entry = entry
}

// Invalidate 清空槽位，并使所有在途请求失效
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
	c.generation++
	c.pending = ""
}

// Begin 登记一次拉取；之后的 Begin 或 Invalidate 会让它过期
func (c *QueryCache) Begin(key string) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.pending = key
	return Ticket{Key: key, Generation: c.generation}
}

// Commit 仅当凭证仍是最新时写入；过期响应被丢弃并返回 false
func (c *QueryCache) Commit(t Ticket, entry *Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Generation != c.generation || t.Key != c.pending {
		return false
	}
	entry.ParamsKey = t.Key
	c.entry = entry
	c.pending = ""
	return true
}

// Current 判断凭证是否仍是最新
func (c *QueryCache) Current(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.Generation == c.generation && t.Key == c.pending
}

func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
