package model

// WindowFull labels the untruncated window category.
const WindowFull = "full"

// FeatureRow is one output record: flow metadata plus the feature vector
// for one window category of one flow.
type FeatureRow struct {
	CaptureFile string
	FlowID      string
	Window      string // WindowFull or the decimal window size
	Client      Endpoint
	Server      Endpoint
	Features    *FeatureVector
}

// Windowed reports whether the row belongs to a truncated window.
func (r *FeatureRow) Windowed() bool {
	return r.Window != WindowFull
}

// Header returns the column names for the row's window category. Truncated
// rows declare their own window size; no row of either category carries the
// flow's untruncated packet total.
func (r *FeatureRow) Header() []string {
	cols := make([]string, 0, 7+len(FeatureColumns))
	cols = append(cols, "file", "flow_id")
	if r.Windowed() {
		cols = append(cols, "window_size")
	}
	cols = append(cols, "client_ip", "client_port", "server_ip", "server_port")
	return append(cols, FeatureColumns...)
}

// Record renders the row's values in Header order.
func (r *FeatureRow) Record() []string {
	rec := make([]string, 0, 7+len(FeatureColumns))
	rec = append(rec, r.CaptureFile, r.FlowID)
	if r.Windowed() {
		rec = append(rec, r.Window)
	}
	rec = append(rec, r.Client.Addr, r.Client.Port, r.Server.Addr, r.Server.Port)
	for _, v := range r.Features.Row() {
		rec = append(rec, FormatValue(v))
	}
	return rec
}
