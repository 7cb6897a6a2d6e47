// Package assemble reconstructs bidirectional flows from one capture file's
// packet stream.
package assemble

import (
	"QuicSieve/internal/model"
)

// Table holds the flows of one capture file. Each file gets a table of its
// own, filled by a single goroutine while the reader produces; once the
// stream ends the table is read-only. There is no flow timeout: a flow is
// complete when its file is.
type Table struct {
	flows     map[string]*model.Flow
	order     []string
	malformed int
}

// Assemble drains records from in until the channel closes and groups them
// into flows. The first packet observed for a new flow id fixes the flow's
// client endpoint; every packet is direction-tagged against that client and
// appended in arrival order. Records without both endpoints cannot be keyed
// and are counted as malformed, never fatal.
func Assemble(in <-chan *model.PacketRecord) *Table {
	t := &Table{flows: make(map[string]*model.Flow)}
	for rec := range in {
		t.add(rec)
	}
	return t
}

func (t *Table) add(rec *model.PacketRecord) {
	if rec.Src.Addr == "" || rec.Src.Port == "" || rec.Dst.Addr == "" || rec.Dst.Port == "" {
		t.malformed++
		return
	}
	id := model.FlowID(rec.Src, rec.Dst)
	flow, ok := t.flows[id]
	if !ok {
		flow = &model.Flow{ID: id, Client: rec.Src, Server: rec.Dst}
		t.flows[id] = flow
		t.order = append(t.order, id)
	}
	flow.Append(rec)
}

// Flows returns the completed flows in first-seen order, so runs over the
// same capture produce the same work distribution.
func (t *Table) Flows() []*model.Flow {
	flows := make([]*model.Flow, len(t.order))
	for i, id := range t.order {
		flows[i] = t.flows[id]
	}
	return flows
}

// Len returns the number of flows in the table.
func (t *Table) Len() int {
	return len(t.flows)
}

// Malformed returns the count of records dropped for missing endpoints.
func (t *Table) Malformed() int {
	return t.malformed
}
