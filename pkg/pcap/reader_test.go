package pcap

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"QuicSieve/internal/capture"
)

// writeTestCapture builds a small pcap with three UDP datagrams and one TCP
// segment.
func writeTestCapture(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pcap-reader-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "test.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create capture: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("Failed to write file header: %v", err)
	}

	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	ts := time.Now()
	write := func(buf gopacket.SerializeBuffer) {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			t.Fatalf("Failed to write packet: %v", err)
		}
		ts = ts.Add(10 * time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		ipLayer := &layers.IPv4{
			SrcIP:    net.IP{10, 0, 0, 1},
			DstIP:    net.IP{10, 0, 0, 2},
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
		}
		udpLayer := &layers.UDP{SrcPort: 51000, DstPort: 443}
		udpLayer.SetNetworkLayerForChecksum(ipLayer)
		buf := gopacket.NewSerializeBuffer()
		payload := gopacket.Payload([]byte{0x45, 0x01, 0x02, 0x03})
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, payload); err != nil {
			t.Fatalf("Failed to serialize UDP packet: %v", err)
		}
		write(buf)
	}

	ipLayer := &layers.IPv4{
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcpLayer := &layers.TCP{SrcPort: 44321, DstPort: 80, SYN: true, Window: 14600}
	tcpLayer.SetNetworkLayerForChecksum(ipLayer)
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer); err != nil {
		t.Fatalf("Failed to serialize TCP packet: %v", err)
	}
	write(buf)

	return path
}

func TestReader_ReadPackets(t *testing.T) {
	path := writeTestCapture(t)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	out := make(chan *capture.PacketInfo)
	skippedCh := make(chan int, 1)
	go func() { skippedCh <- reader.ReadPackets(out) }()

	count := 0
	for info := range out {
		count++
		if info.Src.Port != "51000" || info.Dst.Port != "443" {
			t.Errorf("Unexpected endpoints: %s -> %s", info.Src.String(), info.Dst.String())
		}
	}
	if count != 3 {
		t.Errorf("Expected to read 3 UDP packets, got %d", count)
	}
	if skipped := <-skippedCh; skipped != 1 {
		t.Errorf("Expected the TCP packet to be skipped, got %d", skipped)
	}
}

func TestReader_SetFilter(t *testing.T) {
	path := writeTestCapture(t)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()
	if err := reader.SetFilter("udp"); err != nil {
		t.Fatalf("Failed to set filter: %v", err)
	}

	out := make(chan *capture.PacketInfo)
	skippedCh := make(chan int, 1)
	go func() { skippedCh <- reader.ReadPackets(out) }()

	count := 0
	for range out {
		count++
	}
	if count != 3 {
		t.Errorf("Expected 3 UDP packets through the filter, got %d", count)
	}
	if skipped := <-skippedCh; skipped != 0 {
		t.Errorf("Filtered read should skip nothing, got %d", skipped)
	}
}
