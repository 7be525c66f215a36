package lifecycle

import (
	"testing"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
)

var allStatuses = []string{
	"", "unknown", "DRAFT", "PENDING_REVIEW", "AUDITED", "CONFIRMED", "EFFECTIVE", "IN_PROGRESS",
	"DELIVERED", "COMPLETED", "REJECTED", "CANCELLED",
	"草稿", "待审核", "已审核", "已生效", "执行中", "已交货", "已完成", "已驳回", "已取消",
}

var allReviews = []string{"", "PENDING", "APPROVED", "REJECTED", "待审核", "通过", "驳回"}

func TestClassifyAlwaysInVocabulary(t *testing.T) {
	vocab := map[string]bool{}
	for _, v := range Vocabulary() {
		vocab[v] = true
	}
	for _, st := range allStatuses {
		for _, rv := range allReviews {
			lc := Classify(st, rv)
			if !vocab[lc.StageName] {
				t.Fatalf("Classify(%q, %q) = %q, not in vocabulary", st, rv, lc.StageName)
			}
			if len(lc.MainStages) != 7 {
				t.Fatalf("Classify(%q, %q) main stages = %d, want 7", st, rv, len(lc.MainStages))
			}
		}
	}
}

func TestClassifySpellingInvariance(t *testing.T) {
	pairs := [][2]string{
		{"AUDITED", "已审核"},
		{"DRAFT", "草稿"},
		{"PENDING_REVIEW", "待审核"},
		{"EFFECTIVE", "已生效"},
		{"IN_PROGRESS", "执行中"},
		{"DELIVERED", "已交货"},
		{"COMPLETED", "已完成"},
		{"REJECTED", "已驳回"},
		{"CANCELLED", "已取消"},
		{"audited", "AUDITED"},
		{"in-progress", "IN_PROGRESS"},
		{"CONFIRMED", "AUDITED"},
	}
	for _, p := range pairs {
		a, b := Classify(p[0], ""), Classify(p[1], "")
		if a.StageName != b.StageName {
			t.Errorf("Classify(%q)=%q, Classify(%q)=%q", p[0], a.StageName, p[1], b.StageName)
		}
	}
}

func TestClassifyDefaultsAndOverrides(t *testing.T) {
	tests := []struct {
		status string
		review string
		want   Stage
	}{
		{"", "", StageDraft},
		{"???", "", StageDraft},
		{"DRAFT", "PENDING", StageDraft},
		{"", "PENDING", StagePendingReview},
		{"PENDING_REVIEW", "待审核", StagePendingReview},
		{"AUDITED", "PENDING", StageAudited},
		{"REJECTED", "PENDING", StageRejected},
		{"CANCELLED", "APPROVED", StageCancelled},
		{"已审核", "通过", StageAudited},
		{"COMPLETED", "", StageCompleted},
	}
	for _, tt := range tests {
		if got := StageOf(tt.status, tt.review); got != tt.want {
			t.Errorf("StageOf(%q, %q) = %v, want %v", tt.status, tt.review, got, tt.want)
		}
	}
}

func TestMainStagesProgress(t *testing.T) {
	lc := Classify("IN_PROGRESS", "APPROVED")
	want := []string{StepFinish, StepFinish, StepFinish, StepFinish, StepProcess, StepWait, StepWait}
	for i, step := range lc.MainStages {
		if step.Status != want[i] {
			t.Errorf("step %d (%s) = %s, want %s", i, step.Label, step.Status, want[i])
		}
	}

	rejected := Classify("REJECTED", "REJECTED")
	if rejected.MainStages[1].Status != StepError {
		t.Errorf("rejected order should stop at pending review with error, got %s", rejected.MainStages[1].Status)
	}
	if rejected.Status != StepError {
		t.Errorf("rejected lifecycle status = %s", rejected.Status)
	}

	done := Classify("COMPLETED", "APPROVED")
	for _, step := range done.MainStages {
		if step.Status != StepFinish {
			t.Fatalf("completed order step %s = %s", step.Label, step.Status)
		}
	}
}

func TestActions(t *testing.T) {
	tests := []struct {
		status string
		edit   bool
		delete bool
		submit bool
		push   bool
	}{
		{"DRAFT", true, true, true, false},
		{"PENDING_REVIEW", true, true, false, false},
		{"REJECTED", true, false, true, false},
		{"AUDITED", false, false, false, true},
		{"EFFECTIVE", false, false, false, true},
		{"IN_PROGRESS", false, false, false, true},
		{"DELIVERED", false, false, false, false},
		{"CANCELLED", false, false, false, false},
	}
	for _, tt := range tests {
		a := Classify(tt.status, "").Actions()
		if a.Edit != tt.edit || a.Delete != tt.delete || a.Submit != tt.submit || a.Push != tt.push {
			t.Errorf("%s actions = %+v", tt.status, a)
		}
	}
}

func TestForOrderSubStages(t *testing.T) {
	o := &entity.SalesOrder{
		Status:              "AUDITED",
		ReviewStatus:        "APPROVED",
		PushedToComputation: true,
		Items: []entity.SalesOrderItem{
			{RequiredQuantity: 10, DeliveredQuantity: 4, WorkOrderCode: "WO-1"},
		},
	}
	lc := ForOrder(o)
	if len(lc.SubStages) != 4 {
		t.Fatalf("expected 4 sub stages, got %d", len(lc.SubStages))
	}
	if lc.SubStages[0].Status != StepFinish {
		t.Errorf("computation sub stage = %s", lc.SubStages[0].Status)
	}
	if lc.SubStages[2].Status != StepProcess {
		t.Errorf("partially shipped sub stage = %s", lc.SubStages[2].Status)
	}

	if draft := ForOrder(&entity.SalesOrder{Status: "DRAFT"}); len(draft.SubStages) != 0 {
		t.Errorf("draft order should have no sub stages")
	}
	if nilOrder := ForOrder(nil); nilOrder.Stage != StageDraft {
		t.Errorf("nil order stage = %v", nilOrder.Stage)
	}
}
