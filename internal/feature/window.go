package feature

import (
	"strconv"

	"QuicSieve/internal/model"
)

// Rows builds the output rows for one completed flow: one row over the whole
// packet sequence plus one per configured window size that the flow can
// fill. A flow shorter than a window size produces no row for that window; a
// flow of exactly the window size does. Each truncated vector is computed
// from a prefix slice, so packets past the truncation point never influence
// it.
func Rows(capture string, flow *model.Flow, windows []int) []*model.FeatureRow {
	rows := make([]*model.FeatureRow, 0, 1+len(windows))
	rows = append(rows, row(capture, flow, model.WindowFull, Compute(flow.Packets)))

	for _, w := range windows {
		if len(flow.Packets) < w {
			// windows are validated ascending, nothing larger fits either
			break
		}
		rows = append(rows, row(capture, flow, strconv.Itoa(w), Compute(flow.Packets[:w])))
	}
	return rows
}

func row(capture string, flow *model.Flow, window string, v *model.FeatureVector) *model.FeatureRow {
	return &model.FeatureRow{
		CaptureFile: capture,
		FlowID:      flow.ID,
		Window:      window,
		Client:      flow.Client,
		Server:      flow.Server,
		Features:    v,
	}
}
