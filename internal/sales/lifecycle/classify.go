package lifecycle

// 步骤状态，与前端步骤条一致
const (
	StepWait    = "wait"
	StepProcess = "process"
	StepFinish  = "finish"
	StepError   = "error"
)

// Step 步骤条中的一步
type Step struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// Lifecycle 生命周期视图模型，不落库
type Lifecycle struct {
	Stage               Stage    `json:"stage"`
	StageName           string   `json:"stageName"`
	Color               string   `json:"color"`
	Status              string   `json:"status"`
	MainStages          []Step   `json:"mainStages"`
	SubStages           []Step   `json:"subStages"`
	NextStepSuggestions []string `json:"nextStepSuggestions"`
}

// Facts 子阶段推导所需的额外事实，均来自订单本身
type Facts struct {
	PushedToComputation bool
	HasWorkOrder        bool
	DeliveredQuantity   float64
	RequiredQuantity    float64
}

// backbone 主干阶段，与订单是否真正经过无关
var backbone = []Stage{
	StageDraft,
	StagePendingReview,
	StageAudited,
	StageEffective,
	StageInProgress,
	StageDelivered,
	StageCompleted,
}

// MainStageOrder 返回主干阶段
func MainStageOrder() []Stage {
	out := make([]Stage, len(backbone))
	copy(out, backbone)
	return out
}

// Classify 纯函数：由 status 与 review_status 推导生命周期
func Classify(status, reviewStatus string) Lifecycle {
	return ClassifyWith(status, reviewStatus, Facts{})
}

// ClassifyWith 同 Classify，额外给出执行子阶段
func ClassifyWith(status, reviewStatus string, facts Facts) Lifecycle {
	stage := StageOf(status, reviewStatus)
	return Lifecycle{
		Stage:               stage,
		StageName:           stage.Name(),
		Color:               stage.Color(),
		Status:              stepStatusOf(stage),
		MainStages:          mainSteps(stage),
		SubStages:           subSteps(stage, facts),
		NextStepSuggestions: suggestions(stage, facts),
	}
}

func stepStatusOf(stage Stage) string {
	switch {
	case stage.Terminal():
		return StepError
	case stage == StageCompleted:
		return StepFinish
	}
	return StepProcess
}

func mainSteps(stage Stage) []Step {
	steps := make([]Step, len(backbone))
	// 驳回停在待审核，取消停在取消前最近的已知阶段（未知时为草稿）
	current := stage
	switch stage {
	case StageRejected:
		current = StagePendingReview
	case StageCancelled:
		current = StageDraft
	}
	for i, s := range backbone {
		st := StepWait
		switch {
		case s < current:
			st = StepFinish
		case s == current && stage.Terminal():
			st = StepError
		case s == current && s == StageCompleted:
			st = StepFinish
		case s == current:
			st = StepProcess
		}
		steps[i] = Step{Key: s.String(), Label: s.Name(), Status: st}
	}
	return steps
}

func subSteps(stage Stage, facts Facts) []Step {
	if !(stage.Approved() || stage == StageDelivered || stage == StageCompleted) {
		return []Step{}
	}
	done := stage == StageCompleted
	delivered := done || stage == StageDelivered ||
		(facts.RequiredQuantity > 0 && facts.DeliveredQuantity >= facts.RequiredQuantity)
	partial := facts.DeliveredQuantity > 0 && !delivered

	status := func(finished, inProgress bool) string {
		switch {
		case finished:
			return StepFinish
		case inProgress:
			return StepProcess
		}
		return StepWait
	}
	return []Step{
		{Key: "computation", Label: "需求计算", Status: status(facts.PushedToComputation || done, false)},
		{Key: "production", Label: "生产", Status: status(done || delivered, facts.HasWorkOrder)},
		{Key: "shipment", Label: "发货", Status: status(delivered, partial)},
		{Key: "invoice", Label: "开票", Status: status(done, delivered)},
	}
}

func suggestions(stage Stage, facts Facts) []string {
	switch stage {
	case StageDraft:
		return []string{"完善订单明细后提交审核"}
	case StagePendingReview:
		return []string{"等待审核人审核", "如需修改可撤回后编辑"}
	case StageAudited, StageEffective, StageInProgress:
		if !facts.PushedToComputation {
			return []string{"下推需求计算", "或直推生产计划/工单"}
		}
		return []string{"跟进生产进度", "下推发货通知单"}
	case StageDelivered:
		return []string{"下推销售发票", "确认回款后完成订单"}
	case StageRejected:
		return []string{"根据驳回意见修改后重新提交"}
	}
	return []string{}
}

// CanEdit 草稿、待审核、已驳回可编辑
func (l Lifecycle) CanEdit() bool {
	switch l.Stage {
	case StageDraft, StagePendingReview, StageRejected:
		return true
	}
	return false
}

// CanDelete 草稿、待审核可删除
func (l Lifecycle) CanDelete() bool {
	return l.Stage == StageDraft || l.Stage == StagePendingReview
}

func (l Lifecycle) CanSubmit() bool {
	return l.Stage == StageDraft || l.Stage == StageRejected
}

func (l Lifecycle) CanApprove() bool {
	return l.Stage == StagePendingReview
}

func (l Lifecycle) CanWithdraw() bool {
	return l.Stage == StagePendingReview
}

func (l Lifecycle) CanUnapprove() bool {
	return l.Stage == StageAudited
}

// CanConfirm 已审核转执行
func (l Lifecycle) CanConfirm() bool {
	return l.Stage == StageAudited
}

func (l Lifecycle) IsApproved() bool {
	return l.Stage.Approved()
}

// Actions 操作按钮可用性
type Actions struct {
	Edit      bool `json:"edit"`
	Delete    bool `json:"delete"`
	Submit    bool `json:"submit"`
	Approve   bool `json:"approve"`
	Reject    bool `json:"reject"`
	Withdraw  bool `json:"withdraw"`
	Unapprove bool `json:"unapprove"`
	Confirm   bool `json:"confirm"`
	Push      bool `json:"push"`
}

func (l Lifecycle) Actions() Actions {
	return Actions{
		Edit:      l.CanEdit(),
		Delete:    l.CanDelete(),
		Submit:    l.CanSubmit(),
		Approve:   l.CanApprove(),
		Reject:    l.CanApprove(),
		Withdraw:  l.CanWithdraw(),
		Unapprove: l.CanUnapprove(),
		Confirm:   l.CanConfirm(),
		Push:      l.IsApproved(),
	}
}
