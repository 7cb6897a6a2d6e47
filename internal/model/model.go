package model

// Endpoint identifies one side of a flow as it appears in the decoder output.
// Addr and Port keep the decoder's textual form so that flow ids are stable
// across runs.
type Endpoint struct {
	Addr string
	Port string
}

// String renders the endpoint as "addr:port".
func (e Endpoint) String() string {
	return e.Addr + ":" + e.Port
}

// Spin is the tri-state spin bit: short-header packets carry a 0 or 1,
// long-header packets carry nothing.
type Spin uint8

const (
	SpinAbsent Spin = iota
	SpinZero
	SpinOne
)

// PacketType buckets a packet into the coarse QUIC taxonomy used for the
// type-count features.
type PacketType uint8

const (
	TypeInitial PacketType = iota
	TypeHandshake
	TypeZeroRTT
	TypeOneRTT
	TypeRetry
	TypeOther
)

// Direction tags a packet relative to the flow's client.
type Direction uint8

const (
	DirOutgoing Direction = iota // sent by the client
	DirIncoming                  // sent to the client
)

// PacketRecord holds the fields of one decoded packet. Every field except
// Direction is set by the decoder and never changes; Direction is assigned
// exactly once by the assembler when the record joins its flow.
type PacketRecord struct {
	Timestamp  float64 // epoch seconds
	Size       int
	Src        Endpoint
	Dst        Endpoint
	LongHeader bool
	Type       PacketType
	Spin       Spin
	Direction  Direction
}

// FlowID returns the canonical identifier for an unordered endpoint pair:
// the lexicographically smaller of the two directed forms, so packets of
// either direction map to the same id.
func FlowID(a, b Endpoint) string {
	fwd := a.String() + "->" + b.String()
	rev := b.String() + "->" + a.String()
	if fwd <= rev {
		return fwd
	}
	return rev
}

// Flow represents one bidirectional flow within a single capture file.
// Client is the source endpoint of the first packet observed for the flow's
// id and is fixed for its lifetime; Packets preserves reader order. A flow
// is assembled by one goroutine and handed whole to one worker, so it
// carries no lock.
type Flow struct {
	ID      string
	Client  Endpoint
	Server  Endpoint
	Packets []*PacketRecord
}

// Append adds a record to the flow, tagging its direction against the
// flow's client endpoint.
func (f *Flow) Append(rec *PacketRecord) {
	if rec.Src == f.Client {
		rec.Direction = DirOutgoing
	} else {
		rec.Direction = DirIncoming
	}
	f.Packets = append(f.Packets, rec)
}
