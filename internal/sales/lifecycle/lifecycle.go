// Package lifecycle derives the canonical lifecycle stage of a sales order
// from its raw status and review status.
//
// The backend has shipped several spellings for the same status over time
// (English enum values, Chinese labels, older synonyms). They are resolved
// once here through a single alias table; everything past Classify works
// with the Stage enum only. A stage is never stored, only recomputed.
package lifecycle

import "strings"

// Stage 生命周期阶段
type Stage int

const (
	StageDraft Stage = iota
	StagePendingReview
	StageAudited
	StageEffective
	StageInProgress
	StageDelivered
	StageCompleted
	StageRejected
	StageCancelled
)

var stageNames = [...]string{
	StageDraft:         "草稿",
	StagePendingReview: "待审核",
	StageAudited:       "已审核",
	StageEffective:     "已生效",
	StageInProgress:    "执行中",
	StageDelivered:     "已交货",
	StageCompleted:     "已完成",
	StageRejected:      "已驳回",
	StageCancelled:     "已取消",
}

var stageCodes = [...]string{
	StageDraft:         "DRAFT",
	StagePendingReview: "PENDING_REVIEW",
	StageAudited:       "AUDITED",
	StageEffective:     "EFFECTIVE",
	StageInProgress:    "IN_PROGRESS",
	StageDelivered:     "DELIVERED",
	StageCompleted:     "COMPLETED",
	StageRejected:      "REJECTED",
	StageCancelled:     "CANCELLED",
}

var stageColors = [...]string{
	StageDraft:         "default",
	StagePendingReview: "processing",
	StageAudited:       "cyan",
	StageEffective:     "blue",
	StageInProgress:    "geekblue",
	StageDelivered:     "purple",
	StageCompleted:     "success",
	StageRejected:      "error",
	StageCancelled:     "default",
}

// Vocabulary 全部阶段名，按顺序
func Vocabulary() []string {
	out := make([]string, len(stageNames))
	copy(out, stageNames[:])
	return out
}

func (s Stage) valid() bool {
	return s >= StageDraft && s <= StageCancelled
}

// Name 中文阶段名，用于标签与步骤条
func (s Stage) Name() string {
	if !s.valid() {
		return stageNames[StageDraft]
	}
	return stageNames[s]
}

// String 英文代码
func (s Stage) String() string {
	if !s.valid() {
		return stageCodes[StageDraft]
	}
	return stageCodes[s]
}

// Color 标签颜色
func (s Stage) Color() string {
	if !s.valid() {
		return stageColors[StageDraft]
	}
	return stageColors[s]
}

// Terminal 驳回与取消后不再推断
func (s Stage) Terminal() bool {
	return s == StageRejected || s == StageCancelled
}

// Approved 已审核、已生效、执行中，可下推
func (s Stage) Approved() bool {
	return s == StageAudited || s == StageEffective || s == StageInProgress
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ReviewStatus 审核状态
type ReviewStatus int

const (
	ReviewUnknown ReviewStatus = iota
	ReviewPending
	ReviewApproved
	ReviewRejected
)

// 状态别名表，key 为 normalizeKey 之后的值
var statusAliases = map[string]Stage{
	"DRAFT": StageDraft,
	"草稿":    StageDraft,

	"PENDING_REVIEW": StagePendingReview,
	"PENDING":        StagePendingReview,
	"SUBMITTED":      StagePendingReview,
	"待审核":            StagePendingReview,
	"已提交":            StagePendingReview,
	"审核中":            StagePendingReview,

	"AUDITED":   StageAudited,
	"APPROVED":  StageAudited,
	"CONFIRMED": StageAudited,
	"已审核":       StageAudited,
	"已确认":       StageAudited,
	"审核通过":      StageAudited,

	"EFFECTIVE": StageEffective,
	"ACTIVE":    StageEffective,
	"已生效":       StageEffective,

	"IN_PROGRESS": StageInProgress,
	"PROCESSING":  StageInProgress,
	"EXECUTING":   StageInProgress,
	"执行中":         StageInProgress,
	"进行中":         StageInProgress,

	"DELIVERED": StageDelivered,
	"SHIPPED":   StageDelivered,
	"已交货":       StageDelivered,
	"已发货":       StageDelivered,

	"COMPLETED": StageCompleted,
	"DONE":      StageCompleted,
	"CLOSED":    StageCompleted,
	"已完成":       StageCompleted,
	"已关闭":       StageCompleted,

	"REJECTED": StageRejected,
	"已驳回":      StageRejected,
	"驳回":       StageRejected,

	"CANCELLED": StageCancelled,
	"CANCELED":  StageCancelled,
	"已取消":       StageCancelled,
	"取消":        StageCancelled,
}

var reviewAliases = map[string]ReviewStatus{
	"PENDING": ReviewPending,
	"待审核":     ReviewPending,
	"审核中":     ReviewPending,

	"APPROVED": ReviewApproved,
	"PASSED":   ReviewApproved,
	"通过":       ReviewApproved,
	"已通过":      ReviewApproved,
	"审核通过":     ReviewApproved,

	"REJECTED": ReviewRejected,
	"驳回":       ReviewRejected,
	"已驳回":      ReviewRejected,
	"不通过":      ReviewRejected,
}

func normalizeKey(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ToUpper(s)
}

// NormalizeStatus 原始状态到阶段；未知返回 false
func NormalizeStatus(raw string) (Stage, bool) {
	st, ok := statusAliases[normalizeKey(raw)]
	return st, ok
}

// NormalizeReview 原始审核状态到枚举
func NormalizeReview(raw string) ReviewStatus {
	return reviewAliases[normalizeKey(raw)]
}

// StageOf 只计算阶段
func StageOf(status, reviewStatus string) Stage {
	stage, known := NormalizeStatus(status)
	if !known {
		stage = StageDraft
	}
	if stage.Terminal() {
		return stage
	}
	// 已提交待审：状态未明确或处于待审时，以审核状态为准
	if NormalizeReview(reviewStatus) == ReviewPending && (!known || stage == StagePendingReview) {
		return StagePendingReview
	}
	return stage
}
