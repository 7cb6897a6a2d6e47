package capture

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"QuicSieve/internal/model"
)

// QUIC first-byte flags. The fixed bit is set in every QUIC packet, the form
// bit distinguishes long from short headers.
const (
	headerFormBit = 0x80
	fixedBit      = 0x40
)

// PacketInfo is one UDP datagram lifted out of a capture, with the transport
// payload kept around for QUIC header inspection.
type PacketInfo struct {
	Timestamp time.Time
	Src       model.Endpoint
	Dst       model.Endpoint
	Length    int
	Payload   []byte
}

// ParsePacket extracts the endpoints and payload of a UDP packet. QUIC rides
// on UDP only, so anything else is rejected.
func ParsePacket(packet gopacket.Packet) (*PacketInfo, error) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, fmt.Errorf("not a UDP packet")
	}
	udp := udpLayer.(*layers.UDP)

	var srcAddr, dstAddr string
	switch ipLayer := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		srcAddr, dstAddr = ipLayer.SrcIP.String(), ipLayer.DstIP.String()
	case *layers.IPv6:
		srcAddr, dstAddr = ipLayer.SrcIP.String(), ipLayer.DstIP.String()
	default:
		return nil, fmt.Errorf("no IP layer")
	}

	info := &PacketInfo{
		Timestamp: time.Now(),
		Src:       model.Endpoint{Addr: srcAddr, Port: strconv.Itoa(int(udp.SrcPort))},
		Dst:       model.Endpoint{Addr: dstAddr, Port: strconv.Itoa(int(udp.DstPort))},
		Length:    len(packet.Data()),
		Payload:   udp.Payload,
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		info.Timestamp = meta.Timestamp
	}
	return info, nil
}

// FlowID returns the canonical flow identifier for the packet's endpoints.
func (p *PacketInfo) FlowID() string {
	return model.FlowID(p.Src, p.Dst)
}

// QUICHeader classifies the payload's first byte. ok is false when the
// payload is empty or the fixed bit is clear, meaning this is not QUIC.
func QUICHeader(payload []byte) (longHeader bool, ok bool) {
	if len(payload) == 0 || payload[0]&fixedBit == 0 {
		return false, false
	}
	return payload[0]&headerFormBit != 0, true
}
