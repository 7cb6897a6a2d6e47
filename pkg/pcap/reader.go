package pcap

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"QuicSieve/internal/capture"
)

// Reader reads packets from a capture file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new reader for the given capture file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// SetFilter applies a BPF filter to the handle, e.g. "udp" to drop everything
// QUIC cannot ride on before parsing.
func (r *Reader) SetFilter(bpf string) error {
	return r.handle.SetBPFFilter(bpf)
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets parses every packet in the file into out and closes the channel
// when the file is exhausted. Packets the parser rejects are counted in
// skipped and dropped.
func (r *Reader) ReadPackets(out chan<- *capture.PacketInfo) (skipped int) {
	defer close(out)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		info, err := capture.ParsePacket(packet)
		if err != nil {
			skipped++
			continue
		}
		out <- info
	}
	return skipped
}
