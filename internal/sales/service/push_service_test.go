package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/sse"
)

func stateOf(env *testEnv, id int64, target entity.PushTarget) PushState {
	return env.svcs.Push.getState(env.sess, pushKey(id, target)).State
}

func TestAvailability(t *testing.T) {
	draft := draftOrder(item(1, "M-1", 2))
	audited := auditedOrder(item(1, "M-1", 2))
	pushed := auditedOrder(item(1, "M-1", 2))
	pushed.PushedToComputation = true

	tests := []struct {
		name   string
		order  entity.SalesOrder
		target entity.PushTarget
		want   bool
	}{
		{"draft cannot push", draft, entity.TargetComputation, false},
		{"draft cannot invoice", draft, entity.TargetInvoice, false},
		{"audited computation", audited, entity.TargetComputation, true},
		{"audited shipment", audited, entity.TargetShipmentNotice, true},
		{"audited withdraw before push", audited, entity.TargetWithdrawComputation, false},
		{"pushed computation again", pushed, entity.TargetComputation, false},
		{"pushed withdraw", pushed, entity.TargetWithdrawComputation, true},
		{"pushed work order", pushed, entity.TargetWorkOrder, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Availability(&tt.order, tt.target)
			if ok != tt.want {
				t.Errorf("available = %v (%s)", ok, reason)
			}
			if !ok && reason == "" {
				t.Error("unavailable option needs a reason")
			}
		})
	}
}

func TestPushComputationPreviewThenCommit(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))
	ctx := context.Background()

	if _, err := env.sess.Request(ctx, TableQuery{}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.svcs.Order.Detail(ctx, env.sess, id, testUser); err != nil {
		t.Fatalf("detail: %v", err)
	}

	preview, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetComputation, testUser)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview == nil || len(preview.Items) != 1 {
		t.Fatalf("preview = %+v", preview)
	}
	if got := stateOf(env, id, entity.TargetComputation); got != PushPreviewReady {
		t.Fatalf("state = %s", got)
	}
	if _, ok := env.sess.Cache().Peek(); !ok {
		t.Fatal("preview must not invalidate the cache")
	}

	result, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetComputation, testUser)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.TargetCode != "DC-001" {
		t.Errorf("target code = %q", result.TargetCode)
	}
	if o, _ := env.fake.Order(id); !bool(o.PushedToComputation) {
		t.Error("backend order should be marked pushed")
	}
	if _, ok := env.sess.Cache().Peek(); ok {
		t.Error("cache should be invalidated after push")
	}
	if d := env.sess.Drawer(); d == nil || !bool(d.Order.PushedToComputation) {
		t.Error("open drawer should be refreshed")
	}
	if got := stateOf(env, id, entity.TargetComputation); got != PushCommitted {
		t.Errorf("state = %s", got)
	}
	if n := len(env.logs.logs); n != 1 || env.logs.logs[0].Outcome != "success" {
		t.Errorf("push logs = %+v", env.logs.logs)
	}
	if n := env.rec.last(); n.Level != sse.LevelSuccess || !strings.Contains(n.Message, "DC-001") {
		t.Errorf("notice = %+v", n)
	}

	// 下推后需求计算不可再推，撤回可用
	opts, err := env.svcs.Push.Options(ctx, env.sess, id)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	for _, o := range opts {
		switch o.Target {
		case entity.TargetComputation:
			if o.Available {
				t.Error("computation should be unavailable once pushed")
			}
		case entity.TargetWithdrawComputation:
			if !o.Available {
				t.Errorf("withdraw should be available: %s", o.Reason)
			}
		}
	}
}

func TestCommitWithoutPreview(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))

	_, err := env.svcs.Push.Commit(context.Background(), env.sess, id, entity.TargetWorkOrder, testUser)
	if !errors.Is(err, ErrNoPendingPreview) {
		t.Fatalf("err = %v", err)
	}
	if n := env.fake.Calls("POST /sales-orders/:id/push-to-work-order"); n != 0 {
		t.Errorf("push calls = %d", n)
	}
}

func TestConfirmOnlyTargetNeedsDialog(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))
	ctx := context.Background()
	pushRoute := "POST /sales-orders/:id/push-to-shipment-notice"

	if _, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetShipmentNotice, testUser); !errors.Is(err, ErrNoPendingPreview) {
		t.Fatalf("commit without dialog: %v", err)
	}
	if n := env.fake.Calls(pushRoute); n != 0 {
		t.Fatalf("push calls = %d", n)
	}

	preview, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetShipmentNotice, testUser)
	if err != nil || preview != nil {
		t.Fatalf("preview = %+v, err = %v", preview, err)
	}
	if n := env.fake.TotalCalls(); n != 1 {
		t.Errorf("only the availability lookup should hit the backend, got %d calls", n)
	}
	if got := stateOf(env, id, entity.TargetShipmentNotice); got != PushPreviewReady {
		t.Fatalf("state = %s", got)
	}
	result, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetShipmentNotice, testUser)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.TargetCode != fmt.Sprintf("SN-%03d", id) {
		t.Errorf("target code = %q", result.TargetCode)
	}

	// 已提交的弹窗不能再次确认
	for i := 0; i < 2; i++ {
		if _, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetShipmentNotice, testUser); !errors.Is(err, ErrNoPendingPreview) {
			t.Errorf("repeat commit %d: %v", i, err)
		}
	}
	if n := env.fake.Calls(pushRoute); n != 1 {
		t.Errorf("push calls = %d, want 1", n)
	}
	if n := len(env.logs.logs); n != 1 {
		t.Errorf("push logs = %d, want 1", n)
	}
}

func TestPreviewFailureLeavesNoChange(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))
	env.fake.PreviewFailures[entity.TargetProductionPlan] = "缺少工艺路线"
	ctx := context.Background()
	if _, err := env.sess.Request(ctx, TableQuery{}); err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetProductionPlan, testUser)
	if !errors.Is(err, ErrPreview) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "缺少工艺路线") {
		t.Errorf("backend detail lost: %v", err)
	}
	if got := stateOf(env, id, entity.TargetProductionPlan); got != PushAvailable {
		t.Errorf("state = %s", got)
	}
	if _, ok := env.sess.Cache().Peek(); !ok {
		t.Error("failed preview must not invalidate the cache")
	}
	if _, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetProductionPlan, testUser); !errors.Is(err, ErrNoPendingPreview) {
		t.Errorf("commit after failed preview: %v", err)
	}
	if env.rec.count() != 0 {
		t.Error("no change should be broadcast")
	}
}

func TestCommitFailureReturnsToAvailable(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))
	env.fake.PushFailures[entity.TargetComputation] = "物料未维护BOM"
	ctx := context.Background()

	if _, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetComputation, testUser); err != nil {
		t.Fatalf("preview: %v", err)
	}
	_, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetComputation, testUser)
	if !errors.Is(err, ErrCommit) {
		t.Fatalf("err = %v", err)
	}
	st := env.svcs.Push.getState(env.sess, pushKey(id, entity.TargetComputation))
	if st.State != PushAvailable || !strings.Contains(st.LastError, "物料未维护BOM") {
		t.Errorf("state = %+v", st)
	}
	if o, _ := env.fake.Order(id); bool(o.PushedToComputation) {
		t.Error("order must not be marked pushed")
	}
	if n := len(env.logs.logs); n != 1 || env.logs.logs[0].Outcome != "failure" {
		t.Errorf("push logs = %+v", env.logs.logs)
	}
	if env.guard.Held(pushKey(id, entity.TargetComputation)) {
		t.Error("guard should be released")
	}
	// 失败后需重新预览
	if _, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetComputation, testUser); !errors.Is(err, ErrNoPendingPreview) {
		t.Errorf("second commit: %v", err)
	}
}

func TestPushUnavailableForDraft(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(draftOrder(item(1, "M-1", 2)))

	_, err := env.svcs.Push.Preview(context.Background(), env.sess, id, entity.TargetComputation, testUser)
	if !errors.Is(err, ErrPushUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if n := env.fake.Calls("GET /sales-orders/:id/push-to-computation/preview"); n != 0 {
		t.Errorf("preview calls = %d", n)
	}
}

func TestWithdrawComputationReenablesPush(t *testing.T) {
	env := newTestEnv(t)
	o := auditedOrder(item(1, "M-1", 2))
	o.PushedToComputation = true
	o.ComputationCode = "DC-001"
	id := env.fake.Seed(o)
	ctx := context.Background()

	if _, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetWithdrawComputation, testUser); err != nil {
		t.Fatalf("open dialog: %v", err)
	}
	if _, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetWithdrawComputation, testUser); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	stored, _ := env.fake.Order(id)
	if bool(stored.PushedToComputation) {
		t.Fatal("order should no longer be pushed")
	}
	if ok, reason := Availability(&stored, entity.TargetComputation); !ok {
		t.Errorf("computation should be available again: %s", reason)
	}
}

func TestWithdrawBlockedByDownstream(t *testing.T) {
	env := newTestEnv(t)
	o := auditedOrder(item(1, "M-1", 2))
	o.PushedToComputation = true
	id := env.fake.Seed(o)
	env.fake.Downstream[id] = true
	ctx := context.Background()

	if _, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetWithdrawComputation, testUser); err != nil {
		t.Fatalf("open dialog: %v", err)
	}
	_, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetWithdrawComputation, testUser)
	if !errors.Is(err, ErrCommit) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "下游单据") {
		t.Errorf("backend detail lost: %v", err)
	}
	if stored, _ := env.fake.Order(id); !bool(stored.PushedToComputation) {
		t.Error("order should stay pushed")
	}
}

func TestCommitInFlightRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))
	ctx := context.Background()

	if _, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetInvoice, testUser); err != nil {
		t.Fatalf("open dialog: %v", err)
	}
	release, err := env.guard.Acquire(ctx, pushKey(id, entity.TargetInvoice))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetInvoice, testUser)
	if !errors.Is(err, ErrPushInFlight) {
		t.Fatalf("err = %v", err)
	}
	if n := env.fake.Calls("POST /sales-orders/:id/push-to-invoice"); n != 0 {
		t.Errorf("push calls = %d", n)
	}
}

func TestCancelClearsPreview(t *testing.T) {
	env := newTestEnv(t)
	id := env.fake.Seed(auditedOrder(item(1, "M-1", 2)))
	ctx := context.Background()

	if _, err := env.svcs.Push.Preview(ctx, env.sess, id, entity.TargetWorkOrder, testUser); err != nil {
		t.Fatalf("preview: %v", err)
	}
	env.svcs.Push.Cancel(env.sess, id, entity.TargetWorkOrder)
	if got := stateOf(env, id, entity.TargetWorkOrder); got != PushAvailable {
		t.Errorf("state = %s", got)
	}
	if _, err := env.svcs.Push.Commit(ctx, env.sess, id, entity.TargetWorkOrder, testUser); !errors.Is(err, ErrNoPendingPreview) {
		t.Errorf("commit after cancel: %v", err)
	}
}
