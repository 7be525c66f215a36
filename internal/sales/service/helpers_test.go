package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/sse"
	"github.com/bitfantasy/nimo-sales/internal/sales/testutil"
	"go.uber.org/zap"
)

const testUser = "test-user-001"

// recorder 记录通知与广播
type recorder struct {
	mu      sync.Mutex
	notices []sse.Notice
	changed [][]int64
}

func (r *recorder) Notify(_ string, n sse.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) PublishOrderChanged(ids []int64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, ids)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changed)
}

func (r *recorder) last() sse.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return sse.Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type memPushLogs struct {
	mu   sync.Mutex
	logs []entity.PushLog
}

func (m *memPushLogs) Create(_ context.Context, log *entity.PushLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *log)
	return nil
}

type testEnv struct {
	svcs  *Services
	fake  *testutil.FakeBackend
	rec   *recorder
	logs  *memPushLogs
	guard *LocalGuard
	sess  *TableSession
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeBackend()
	t.Cleanup(fake.Close)

	env := &testEnv{fake: fake, rec: &recorder{}, logs: &memPushLogs{}, guard: NewLocalGuard()}
	env.svcs = NewServices(Options{
		API:      client.New(fake.Config(), zap.NewNop()),
		Notifier: env.rec,
		PushLogs: env.logs,
		Guard:    env.guard,
		Session:  config.SessionConfig{},
		Logger:   zap.NewNop(),
	})
	env.sess = env.svcs.Sessions.Get(testUser, DefaultTableID)
	return env
}

func item(id int64, code string, qty float64) entity.SalesOrderItem {
	return entity.SalesOrderItem{
		ID:               id,
		MaterialID:       id,
		MaterialCode:     code,
		MaterialName:     "物料 " + code,
		RequiredQuantity: qty,
		UnitPrice:        10,
		DeliveryDate:     "2026-11-20",
	}
}

func draftOrder(items ...entity.SalesOrderItem) entity.SalesOrder {
	return entity.SalesOrder{
		CustomerID:   1,
		CustomerName: "客户A",
		OrderDate:    "2026-10-01",
		DeliveryDate: "2026-11-01",
		Status:       entity.SOStatusDraft,
		ReviewStatus: entity.ReviewPending,
		Items:        items,
	}
}

func auditedOrder(items ...entity.SalesOrderItem) entity.SalesOrder {
	o := draftOrder(items...)
	o.Status = entity.SOStatusAudited
	o.ReviewStatus = entity.ReviewApproved
	return o
}
