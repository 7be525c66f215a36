package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/testutil"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *testutil.FakeBackend) {
	t.Helper()
	fake := testutil.NewFakeBackend()
	t.Cleanup(fake.Close)
	return New(fake.Config(), zap.NewNop()), fake
}

func TestListForwardsTokenAndTenant(t *testing.T) {
	c, fake := newTestClient(t)
	fake.Seed(entity.SalesOrder{Status: "DRAFT", Items: []entity.SalesOrderItem{{ID: 1, MaterialCode: "M-1", RequiredQuantity: 2}}})
	fake.Seed(entity.SalesOrder{Status: "AUDITED"})

	ctx := WithTenant(WithToken(context.Background(), "tok-123"), "7")
	res, err := c.ListSalesOrders(ctx, ListParams{Limit: 20, IncludeItems: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 2 || len(res.Data) != 2 {
		t.Fatalf("total=%d len=%d", res.Total, len(res.Data))
	}
	if len(res.Data[0].Items) != 1 {
		t.Errorf("items should be included")
	}
	if fake.LastAuthorization != "Bearer tok-123" {
		t.Errorf("authorization = %q", fake.LastAuthorization)
	}
	if fake.LastTenant != "7" {
		t.Errorf("tenant = %q", fake.LastTenant)
	}
}

func TestListStatusFilter(t *testing.T) {
	c, fake := newTestClient(t)
	fake.Seed(entity.SalesOrder{Status: "DRAFT"})
	fake.Seed(entity.SalesOrder{Status: "AUDITED"})

	res, err := c.ListSalesOrders(context.Background(), ListParams{Limit: 20, Status: "AUDITED"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 1 || res.Data[0].Status != "AUDITED" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGetNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.GetSalesOrder(context.Background(), 404, true, true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected APIError 404, got %v", err)
	}
}

func TestBackendRejectionDetail(t *testing.T) {
	c, fake := newTestClient(t)
	id := fake.Seed(entity.SalesOrder{Status: "DRAFT"})

	_, err := c.ApproveSalesOrder(context.Background(), id)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Detail == "" {
		t.Errorf("unexpected api error %+v", apiErr)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("400 must not match ErrNotFound")
	}
}

func TestRejectSendsReason(t *testing.T) {
	c, fake := newTestClient(t)
	id := fake.Seed(entity.SalesOrder{Status: "PENDING_REVIEW", Items: []entity.SalesOrderItem{{MaterialCode: "M"}}})

	o, err := c.RejectSalesOrder(context.Background(), id, "价格有误")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if o.Status != "REJECTED" || o.ReviewRemarks != "价格有误" {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestBulkDelete(t *testing.T) {
	c, fake := newTestClient(t)
	a := fake.Seed(entity.SalesOrder{Status: "DRAFT"})
	b := fake.Seed(entity.SalesOrder{Status: "AUDITED"})

	res, err := c.BulkDeleteSalesOrders(context.Background(), []int64{a, b})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if res.SuccessCount != 1 || res.FailedCount != 1 || res.FailedItems[0].ID != b {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestPreviewAndPush(t *testing.T) {
	c, fake := newTestClient(t)
	id := fake.Seed(entity.SalesOrder{Status: "AUDITED", ReviewStatus: "APPROVED", Items: []entity.SalesOrderItem{
		{MaterialCode: "M-1", MaterialName: "外壳", RequiredQuantity: 5},
	}})
	ctx := context.Background()

	p, err := c.PreviewPush(ctx, id, entity.TargetComputation)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].MaterialCode != "M-1" {
		t.Errorf("preview items = %+v", p.Items)
	}
	if _, err := c.PreviewPush(ctx, id, entity.TargetInvoice); err == nil {
		t.Errorf("invoice has no preview endpoint")
	}

	res, err := c.Push(ctx, id, entity.TargetComputation)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !res.Success || res.TargetCode == "" {
		t.Errorf("push result = %+v", res)
	}
	if o, _ := fake.Order(id); !bool(o.PushedToComputation) {
		t.Errorf("order should be marked pushed")
	}

	if _, err := c.Push(ctx, id, entity.TargetWithdrawComputation); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if o, _ := fake.Order(id); bool(o.PushedToComputation) {
		t.Errorf("withdraw should clear the flag")
	}
}

func TestDecodePushResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		success bool
		code    string
	}{
		{"explicit success", `{"success":true,"plan_code":"PP-1"}`, true, "PP-1"},
		{"explicit failure", `{"success":false,"message":"库存不足"}`, false, ""},
		{"order payload", `{"id":1,"status":"AUDITED"}`, true, ""},
		{"not an object", `[1,2]`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := decodePushResult([]byte(tt.raw))
			if r.Success != tt.success || r.TargetCode != tt.code {
				t.Errorf("got %+v", r)
			}
		})
	}
}

func TestErrorDetailShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["body","customer_id"],"msg":"field required"}]}`))
	}))
	defer srv.Close()

	c := New(config.BackendConfig{BaseURL: srv.URL, APIPrefix: "/api"}, nil)
	_, err := c.CreateSalesOrder(context.Background(), &entity.SalesOrder{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Path != "/sales-orders" {
		t.Errorf("unexpected %+v", apiErr)
	}
	if apiErr.Detail == "" || apiErr.Detail[0] != '[' {
		t.Errorf("non-string detail should be kept raw, got %q", apiErr.Detail)
	}
}
