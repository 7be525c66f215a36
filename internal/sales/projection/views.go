package projection

import (
	"sort"
	"time"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
)

// CardGroup 卡片视图按生命周期阶段分组
type CardGroup struct {
	Stage     lifecycle.Stage `json:"stage"`
	StageName string          `json:"stageName"`
	Color     string          `json:"color"`
	RowKeys   []string        `json:"rowKeys"`
}

// TimelineRange 时间线视图：订单日期到最晚交货日期
type TimelineRange struct {
	OrderID   int64           `json:"order_id"`
	OrderCode string          `json:"order_code"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Stage     lifecycle.Stage `json:"stage"`
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, bool) {
	if len(s) >= len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	return t, err == nil
}

// groupByStage 主干阶段在前，驳回与取消在后；空分组不输出
func groupByStage(rows []Row) []CardGroup {
	order := append(lifecycle.MainStageOrder(), lifecycle.StageRejected, lifecycle.StageCancelled)
	buckets := make(map[lifecycle.Stage][]string, len(order))
	for _, r := range rows {
		st := r.LifecycleStage().Stage
		buckets[st] = append(buckets[st], r.RowKey())
	}
	groups := make([]CardGroup, 0, len(buckets))
	for _, st := range order {
		keys, ok := buckets[st]
		if !ok {
			continue
		}
		groups = append(groups, CardGroup{
			Stage:     st,
			StageName: st.Name(),
			Color:     st.Color(),
			RowKeys:   keys,
		})
	}
	return groups
}

func timelineRanges(orders []entity.SalesOrder) []TimelineRange {
	out := make([]TimelineRange, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		start, okStart := parseDate(o.OrderDate)
		end, okEnd := parseDate(o.DeliveryDate)
		for _, it := range o.Items {
			if d, ok := parseDate(it.DeliveryDate); ok && (!okEnd || d.After(end)) {
				end, okEnd = d, true
			}
		}
		if !okStart && !okEnd {
			continue
		}
		if !okStart {
			start = end
		}
		if !okEnd || end.Before(start) {
			end = start
		}
		out = append(out, TimelineRange{
			OrderID:   o.ID,
			OrderCode: o.OrderCode,
			Start:     start.Format(dateLayout),
			End:       end.Format(dateLayout),
			Stage:     lifecycle.StageOf(o.Status, o.ReviewStatus),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}
