package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
	"github.com/bitfantasy/nimo-sales/internal/sales/sse"
	"go.uber.org/zap"
)

// OrderService 订单维护与审核流转；所有变更成功后清空缓存
type OrderService struct {
	api      client.SalesOrderAPI
	sessions *SessionStore
	notifier Notifier
	logger   *zap.Logger
}

func NewOrderService(api client.SalesOrderAPI, sessions *SessionStore, notifier Notifier, logger *zap.Logger) *OrderService {
	return &OrderService{api: api, sessions: sessions, notifier: notifier, logger: logger}
}

// mutated 变更后的统一处理：清缓存、刷新抽屉、广播
func (s *OrderService) mutated(ctx context.Context, sess *TableSession, ids []int64, action string) {
	s.sessions.InvalidateAll()
	for _, id := range ids {
		if sess != nil && sess.drawerOpenFor(id) {
			if o, err := s.api.GetSalesOrder(ctx, id, true, true); err == nil {
				sess.openDrawer(o)
			} else {
				s.logger.Warn("refresh detail failed", zap.Int64("order_id", id), zap.Error(err))
			}
		}
	}
	s.notifier.PublishOrderChanged(ids, action)
}

func (s *OrderService) fail(userID, title string, orderID int64, err error) {
	s.notifier.Notify(userID, sse.Notice{Level: sse.LevelError, Title: title, Message: err.Error(), OrderID: orderID})
}

func (s *OrderService) ok(userID, title, message string, orderID int64) {
	s.notifier.Notify(userID, sse.Notice{Level: sse.LevelSuccess, Title: title, Message: message, OrderID: orderID})
}

// Create 新建订单，校验通过后才请求后端
func (s *OrderService) Create(ctx context.Context, in *OrderInput, userID string) (*entity.SalesOrder, error) {
	if err := in.Validate(); err != nil {
		s.fail(userID, "新建销售订单", 0, err)
		return nil, err
	}
	created, err := s.api.CreateSalesOrder(ctx, in.ToEntity())
	if err != nil {
		s.fail(userID, "新建销售订单", 0, err)
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	s.mutated(ctx, nil, []int64{created.ID}, "create")
	s.ok(userID, "新建销售订单", "已创建 "+created.OrderCode, created.ID)
	return created, nil
}

// Update 编辑订单，仅草稿、待审核、已驳回可编辑
func (s *OrderService) Update(ctx context.Context, sess *TableSession, id int64, in *OrderInput, userID string) (*entity.SalesOrder, error) {
	if err := in.Validate(); err != nil {
		s.fail(userID, "编辑销售订单", id, err)
		return nil, err
	}
	current, err := sess.resolveOrder(ctx, id)
	if err != nil {
		s.fail(userID, "编辑销售订单", id, err)
		return nil, err
	}
	if lc := lifecycle.ForOrder(current); !lc.CanEdit() {
		err := invalid(fmt.Sprintf("当前状态（%s）不可编辑", lc.StageName))
		s.fail(userID, "编辑销售订单", id, err)
		return nil, err
	}
	updated, err := s.api.UpdateSalesOrder(ctx, id, in.ToEntity())
	if err != nil {
		s.fail(userID, "编辑销售订单", id, err)
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	s.mutated(ctx, sess, []int64{id}, "update")
	s.ok(userID, "编辑销售订单", "已保存", id)
	return updated, nil
}

// Delete 删除单个订单
func (s *OrderService) Delete(ctx context.Context, sess *TableSession, id int64, userID string) error {
	current, err := sess.resolveOrder(ctx, id)
	if err != nil {
		s.fail(userID, "删除销售订单", id, err)
		return err
	}
	if lc := lifecycle.ForOrder(current); !lc.CanDelete() {
		err := invalid(fmt.Sprintf("当前状态（%s）不可删除", lc.StageName))
		s.fail(userID, "删除销售订单", id, err)
		return err
	}
	if err := s.api.DeleteSalesOrder(ctx, id); err != nil {
		s.fail(userID, "删除销售订单", id, err)
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	if sess.drawerOpenFor(id) {
		sess.CloseDrawer()
	}
	s.mutated(ctx, sess, []int64{id}, "delete")
	s.ok(userID, "删除销售订单", "已删除 "+current.OrderCode, id)
	return nil
}

// 批量结果类型
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// BulkDeleteOutcome 批量删除结果；部分成功是独立的结果类型，不是错误
type BulkDeleteOutcome struct {
	Kind           string                   `json:"kind"`
	Message        string                   `json:"message"`
	SuccessCount   int                      `json:"success_count"`
	FailedCount    int                      `json:"failed_count"`
	FailedItems    []entity.BulkDeleteFault `json:"failed_items"`
	UnknownRowKeys []string                 `json:"unknown_row_keys,omitempty"`
}

// ClassifyBulkDelete 按成功/失败数量区分三种结果
func ClassifyBulkDelete(res *entity.BulkDeleteResult) *BulkDeleteOutcome {
	out := &BulkDeleteOutcome{
		SuccessCount: res.SuccessCount,
		FailedCount:  res.FailedCount,
		FailedItems:  res.FailedItems,
	}
	if out.FailedItems == nil {
		out.FailedItems = []entity.BulkDeleteFault{}
	}
	switch {
	case res.FailedCount == 0:
		out.Kind = OutcomeSuccess
		out.Message = fmt.Sprintf("成功删除 %d 条销售订单", res.SuccessCount)
	case res.SuccessCount > 0:
		out.Kind = OutcomePartial
		out.Message = fmt.Sprintf("%d 条成功，%d 条失败", res.SuccessCount, res.FailedCount)
	default:
		out.Kind = OutcomeFailure
		out.Message = fmt.Sprintf("删除失败，%d 条均未删除", res.FailedCount)
	}
	if len(out.FailedItems) > 0 && out.Kind != OutcomeSuccess {
		reasons := make([]string, 0, len(out.FailedItems))
		for _, f := range out.FailedItems {
			reasons = append(reasons, fmt.Sprintf("#%d %s", f.ID, f.Reason))
		}
		out.Message += "：" + strings.Join(reasons, "；")
	}
	return out
}

// BulkDelete 按选中的行 key 批量删除；明细视图下多行可能属于同一订单
func (s *OrderService) BulkDelete(ctx context.Context, sess *TableSession, rowKeys []string, userID string) (*BulkDeleteOutcome, error) {
	if len(rowKeys) == 0 {
		err := invalid("请选择要删除的销售订单")
		s.fail(userID, "批量删除", 0, err)
		return nil, err
	}
	ids, unknown := sess.OrderIDsForKeys(rowKeys)
	if len(ids) == 0 {
		err := &ValidationError{Message: "选中的行无法对应到销售订单", Fields: map[string]string{"row_keys": strings.Join(unknown, ",")}}
		s.fail(userID, "批量删除", 0, err)
		return nil, err
	}

	res, err := s.api.BulkDeleteSalesOrders(ctx, ids)
	// 请求失败时部分订单可能已删除，缓存一样作废
	defer s.mutated(ctx, sess, ids, "delete")
	if err != nil {
		s.fail(userID, "批量删除", 0, err)
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}

	out := ClassifyBulkDelete(res)
	out.UnknownRowKeys = unknown
	if d := sess.Drawer(); d != nil && containsID(ids, d.OrderID) && !failedID(out.FailedItems, d.OrderID) {
		sess.CloseDrawer()
	}

	level := sse.LevelSuccess
	switch out.Kind {
	case OutcomePartial:
		level = sse.LevelWarning
	case OutcomeFailure:
		level = sse.LevelError
	}
	s.notifier.Notify(userID, sse.Notice{Level: level, Title: "批量删除", Message: out.Message})
	s.logger.Info("bulk delete",
		zap.Int("requested", len(ids)),
		zap.Int("success", out.SuccessCount),
		zap.Int("failed", out.FailedCount),
		zap.String("kind", out.Kind),
	)
	return out, nil
}

// Submit 提交审核；状态不允许或没有明细时直接返回校验错误，不请求后端
func (s *OrderService) Submit(ctx context.Context, sess *TableSession, id int64, userID string) (*entity.SalesOrder, error) {
	// 行或详情已在界面上时本地校验，不发请求；直接按 ID 调用时先读取一次订单
	current, ok := sess.knownOrder(id)
	if !ok {
		var err error
		if current, err = sess.resolveOrder(ctx, id); err != nil {
			s.fail(userID, "提交销售订单", id, err)
			return nil, err
		}
	}
	if err := ValidateForSubmit(current); err != nil {
		s.fail(userID, "提交销售订单", id, err)
		return nil, err
	}
	return s.transition(ctx, sess, id, userID, "提交销售订单", "submit", s.api.SubmitSalesOrder)
}

// Approve 审核通过
func (s *OrderService) Approve(ctx context.Context, sess *TableSession, id int64, userID string) (*entity.SalesOrder, error) {
	if err := s.precheck(ctx, sess, id, userID, "审核销售订单", lifecycle.Lifecycle.CanApprove); err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, id, userID, "审核销售订单", "approve", s.api.ApproveSalesOrder)
}

// Reject 驳回，必须填写原因
func (s *OrderService) Reject(ctx context.Context, sess *TableSession, id int64, reason, userID string) (*entity.SalesOrder, error) {
	if strings.TrimSpace(reason) == "" {
		err := &ValidationError{Message: "请填写驳回原因", Fields: map[string]string{"reason": "必填"}}
		s.fail(userID, "驳回销售订单", id, err)
		return nil, err
	}
	if err := s.precheck(ctx, sess, id, userID, "驳回销售订单", lifecycle.Lifecycle.CanApprove); err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, id, userID, "驳回销售订单", "reject", func(ctx context.Context, id int64) (*entity.SalesOrder, error) {
		return s.api.RejectSalesOrder(ctx, id, strings.TrimSpace(reason))
	})
}

// Unapprove 反审核
func (s *OrderService) Unapprove(ctx context.Context, sess *TableSession, id int64, userID string) (*entity.SalesOrder, error) {
	if err := s.precheck(ctx, sess, id, userID, "反审核销售订单", lifecycle.Lifecycle.CanUnapprove); err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, id, userID, "反审核销售订单", "unapprove", s.api.UnapproveSalesOrder)
}

// Withdraw 撤回已提交的订单，回到草稿
func (s *OrderService) Withdraw(ctx context.Context, sess *TableSession, id int64, userID string) (*entity.SalesOrder, error) {
	if err := s.precheck(ctx, sess, id, userID, "撤回销售订单", lifecycle.Lifecycle.CanWithdraw); err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, id, userID, "撤回销售订单", "withdraw", s.api.WithdrawSalesOrder)
}

// Confirm 确认订单
func (s *OrderService) Confirm(ctx context.Context, sess *TableSession, id int64, userID string) (*entity.SalesOrder, error) {
	if err := s.precheck(ctx, sess, id, userID, "确认销售订单", lifecycle.Lifecycle.CanConfirm); err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, id, userID, "确认销售订单", "confirm", s.api.ConfirmSalesOrder)
}

func (s *OrderService) precheck(ctx context.Context, sess *TableSession, id int64, userID, title string, allowed func(lifecycle.Lifecycle) bool) error {
	current, err := sess.resolveOrder(ctx, id)
	if err != nil {
		s.fail(userID, title, id, err)
		return err
	}
	if lc := lifecycle.ForOrder(current); !allowed(lc) {
		err := invalid(fmt.Sprintf("当前状态（%s）不允许%s", lc.StageName, title))
		s.fail(userID, title, id, err)
		return err
	}
	return nil
}

func (s *OrderService) transition(ctx context.Context, sess *TableSession, id int64, userID, title, action string, call func(context.Context, int64) (*entity.SalesOrder, error)) (*entity.SalesOrder, error) {
	o, err := call(ctx, id)
	if err != nil {
		s.fail(userID, title, id, err)
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	s.mutated(ctx, sess, []int64{id}, action)
	s.ok(userID, title, title+"成功", id)
	return o, nil
}

// Detail 打开详情，总是从后端读取
func (s *OrderService) Detail(ctx context.Context, sess *TableSession, id int64, userID string) (*DetailDrawer, error) {
	o, err := s.api.GetSalesOrder(ctx, id, true, true)
	if err != nil {
		s.fail(userID, "加载订单详情", id, err)
		return nil, err
	}
	return sess.openDrawer(o), nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func failedID(faults []entity.BulkDeleteFault, id int64) bool {
	for _, f := range faults {
		if f.ID == id {
			return true
		}
	}
	return false
}
