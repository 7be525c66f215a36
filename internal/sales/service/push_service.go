package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
	"github.com/bitfantasy/nimo-sales/internal/sales/sse"
	"go.uber.org/zap"
)

// PushState 下推弹窗状态
type PushState string

const (
	PushUnavailable  PushState = "unavailable"
	PushAvailable    PushState = "available"
	PushPreviewing   PushState = "previewing"
	PushPreviewReady PushState = "preview_ready"
	PushConfirming   PushState = "confirming"
	PushCommitted    PushState = "committed"
)

type pushState struct {
	State     PushState
	Preview   *entity.PushPreview
	Result    *entity.PushResult
	LastError string
	UpdatedAt time.Time
}

func pushKey(orderID int64, target entity.PushTarget) string {
	return fmt.Sprintf("%d:%s", orderID, target)
}

// PushOption 下推菜单项
type PushOption struct {
	Target       entity.PushTarget   `json:"target"`
	Label        string              `json:"label"`
	NeedsPreview bool                `json:"needs_preview"`
	Available    bool                `json:"available"`
	Reason       string              `json:"reason,omitempty"`
	State        PushState           `json:"state"`
	Preview      *entity.PushPreview `json:"preview,omitempty"`
	Result       *entity.PushResult  `json:"result,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
}

// Availability 订单已审核（已审核/已生效/执行中）才可下推；
// 需求计算只能下推一次，撤回只在已下推时可用
func Availability(o *entity.SalesOrder, target entity.PushTarget) (bool, string) {
	lc := lifecycle.ForOrder(o)
	if !lc.IsApproved() {
		return false, fmt.Sprintf("订单当前为%s，审核通过后才能下推", lc.StageName)
	}
	pushed := bool(o.PushedToComputation)
	switch target {
	case entity.TargetComputation:
		if pushed {
			return false, "已下推需求计算"
		}
	case entity.TargetWithdrawComputation:
		if !pushed {
			return false, "尚未下推需求计算"
		}
	}
	return true, ""
}

// PushService 下推编排：预览、确认、防重、成功后的缓存作废与详情刷新
type PushService struct {
	api      client.SalesOrderAPI
	sessions *SessionStore
	guard    Guard
	logs     PushLogWriter
	notifier Notifier
	logger   *zap.Logger
}

func NewPushService(api client.SalesOrderAPI, sessions *SessionStore, guard Guard, logs PushLogWriter, notifier Notifier, logger *zap.Logger) *PushService {
	return &PushService{
		api:      api,
		sessions: sessions,
		guard:    guard,
		logs:     logs,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *PushService) setState(sess *TableSession, key string, fn func(st *pushState)) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st, ok := sess.push[key]
	if !ok {
		st = &pushState{State: PushAvailable}
		sess.push[key] = st
	}
	fn(st)
	st.UpdatedAt = time.Now()
}

func (s *PushService) getState(sess *TableSession, key string) pushState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if st, ok := sess.push[key]; ok {
		return *st
	}
	return pushState{State: PushAvailable}
}

// Options 订单的下推菜单
func (s *PushService) Options(ctx context.Context, sess *TableSession, orderID int64) ([]PushOption, error) {
	o, err := sess.resolveOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	opts := make([]PushOption, 0, len(entity.AllTargets))
	for _, t := range entity.AllTargets {
		ok, reason := Availability(o, t)
		st := s.getState(sess, pushKey(orderID, t))
		opt := PushOption{
			Target:       t,
			Label:        t.Label(),
			NeedsPreview: t.HasPreview(),
			Available:    ok,
			Reason:       reason,
			State:        st.State,
			Preview:      st.Preview,
			Result:       st.Result,
			LastError:    st.LastError,
		}
		// 确认中的状态优先于可用性
		if !ok && st.State != PushConfirming {
			opt.State = PushUnavailable
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func (s *PushService) checkAvailable(ctx context.Context, sess *TableSession, orderID int64, target entity.PushTarget) (*entity.SalesOrder, error) {
	o, err := sess.resolveOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ok, reason := Availability(o, target); !ok {
		return nil, fmt.Errorf("%w: %s", ErrPushUnavailable, reason)
	}
	return o, nil
}

// Preview 打开下推弹窗；需要预览的目标拉取预览，其余直接进入确认
// 预览失败回到可用状态并返回错误，不产生任何变更
func (s *PushService) Preview(ctx context.Context, sess *TableSession, orderID int64, target entity.PushTarget, userID string) (*entity.PushPreview, error) {
	key := pushKey(orderID, target)
	if st := s.getState(sess, key); st.State == PushConfirming {
		return nil, ErrPushInFlight
	}
	if _, err := s.checkAvailable(ctx, sess, orderID, target); err != nil {
		s.notify(userID, sse.LevelWarning, target, orderID, err.Error())
		return nil, err
	}

	if !target.HasPreview() {
		s.setState(sess, key, func(st *pushState) {
			st.State = PushPreviewReady
			st.Preview = nil
			st.LastError = ""
		})
		return nil, nil
	}

	s.setState(sess, key, func(st *pushState) {
		st.State = PushPreviewing
		st.Preview = nil
		st.LastError = ""
	})
	preview, err := s.api.PreviewPush(ctx, orderID, target)
	if err != nil {
		s.setState(sess, key, func(st *pushState) {
			st.State = PushAvailable
			st.LastError = err.Error()
		})
		s.notify(userID, sse.LevelError, target, orderID, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrPreview, err)
	}
	s.setState(sess, key, func(st *pushState) {
		st.State = PushPreviewReady
		st.Preview = preview
	})
	return preview, nil
}

// Cancel 关闭弹窗
func (s *PushService) Cancel(sess *TableSession, orderID int64, target entity.PushTarget) {
	key := pushKey(orderID, target)
	s.setState(sess, key, func(st *pushState) {
		if st.State == PushConfirming {
			return
		}
		st.State = PushAvailable
		st.Preview = nil
	})
}

// Commit 确认下推
// 成功：关闭弹窗、作废缓存、刷新打开的详情、记录日志；失败：回到可用状态，用户重新预览
func (s *PushService) Commit(ctx context.Context, sess *TableSession, orderID int64, target entity.PushTarget, userID string) (*entity.PushResult, error) {
	key := pushKey(orderID, target)
	st := s.getState(sess, key)
	if st.State == PushConfirming {
		return nil, ErrPushInFlight
	}
	// 所有目标都须先打开确认弹窗；已下推的弹窗关闭后不能重复提交
	if st.State != PushPreviewReady {
		return nil, ErrNoPendingPreview
	}

	order, err := s.checkAvailable(ctx, sess, orderID, target)
	if err != nil {
		s.setState(sess, key, func(st *pushState) {
			st.State = PushAvailable
			st.Preview = nil
		})
		s.notify(userID, sse.LevelWarning, target, orderID, err.Error())
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrPushInFlight) {
			s.notify(userID, sse.LevelError, target, orderID, err.Error())
		}
		return nil, err
	}
	defer release()

	s.setState(sess, key, func(st *pushState) { st.State = PushConfirming })

	result, err := s.api.Push(ctx, orderID, target)
	if err == nil && !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "后端返回失败"
		}
		err = errors.New(msg)
	}
	if err != nil {
		s.setState(sess, key, func(st *pushState) {
			st.State = PushAvailable
			st.Preview = nil
			st.LastError = err.Error()
		})
		s.audit(ctx, order, target, "failure", err.Error(), "", userID)
		s.notify(userID, sse.LevelError, target, orderID, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}

	s.setState(sess, key, func(st *pushState) {
		st.State = PushCommitted
		st.Preview = nil
		st.Result = result
		st.LastError = ""
	})
	s.sessions.InvalidateAll()
	if sess.drawerOpenFor(orderID) {
		if o, err := s.api.GetSalesOrder(ctx, orderID, true, true); err == nil {
			sess.openDrawer(o)
		} else {
			s.logger.Warn("refresh detail after push failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}

	msg := result.Message
	if msg == "" {
		msg = target.Label() + "成功"
	}
	if result.TargetCode != "" {
		msg += "，单号 " + result.TargetCode
	}
	s.audit(ctx, order, target, "success", msg, result.TargetCode, userID)
	s.notify(userID, sse.LevelSuccess, target, orderID, msg)
	s.notifier.PublishOrderChanged([]int64{orderID}, "push:"+string(target))
	s.logger.Info("push committed",
		zap.Int64("order_id", orderID),
		zap.String("target", string(target)),
		zap.String("target_code", result.TargetCode),
	)
	return result, nil
}

func (s *PushService) notify(userID, level string, target entity.PushTarget, orderID int64, message string) {
	s.notifier.Notify(userID, sse.Notice{
		Level:   level,
		Title:   target.Label(),
		Message: message,
		OrderID: orderID,
		Target:  string(target),
	})
}

func (s *PushService) audit(ctx context.Context, o *entity.SalesOrder, target entity.PushTarget, outcome, message, targetCode, userID string) {
	if s.logs == nil {
		return
	}
	log := &entity.PushLog{
		OrderID:    o.ID,
		OrderCode:  o.OrderCode,
		Target:     string(target),
		Outcome:    outcome,
		Message:    message,
		TargetCode: targetCode,
		OperatorID: userID,
		CreatedAt:  time.Now(),
	}
	// 审计失败不影响下推结果
	if err := s.logs.Create(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Warn("write push log failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
