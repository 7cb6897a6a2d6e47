package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// QUIC first-byte shapes. Long headers carry the packet type in bits 5-4,
// short headers carry the spin bit in bit 5.
const (
	longInitial   = 0xC0
	longHandshake = 0xE0
	shortBase     = 0x40
	spinBit       = 0x20
)

type queuedPacket struct {
	ts   time.Time
	data []byte
}

func main() {
	outputFile := flag.String("o", "quic_test.pcap", "Output pcap file path")
	flowCount := flag.Int("flows", 20, "Number of QUIC flows to generate")
	packetCount := flag.Int("packets", 50, "Packets per flow")
	seed := flag.Int64("seed", 0, "Random seed, 0 uses the current time")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rand.Seed(*seed)

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	log.Printf("Generating %d flows of ~%d packets into %s (seed %d)...",
		*flowCount, *packetCount, *outputFile, *seed)

	// Build every flow's schedule first, then write in timestamp order so
	// flows interleave the way live captures do.
	base := time.Now()
	var queue []queuedPacket
	for i := 0; i < *flowCount; i++ {
		queue = append(queue, buildFlow(base, *packetCount)...)
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].ts.Before(queue[j].ts) })

	for _, p := range queue {
		ci := gopacket.CaptureInfo{
			Timestamp:     p.ts,
			CaptureLength: len(p.data),
			Length:        len(p.data),
		}
		if err := pcapWriter.WritePacket(ci, p.data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", len(queue), *outputFile)
}

// buildFlow serializes one QUIC conversation: a handshake exchange with long
// headers, then short-header packets with an occasionally flipping spin bit.
func buildFlow(base time.Time, packets int) []queuedPacket {
	clientIP := net.IP{10, 0, byte(rand.Intn(256)), byte(rand.Intn(254) + 1)}
	serverIP := net.IP{203, 0, 113, byte(rand.Intn(254) + 1)}
	clientPort := layers.UDPPort(rand.Intn(65535-1024) + 1024)
	serverPort := layers.UDPPort(443)

	ts := base.Add(time.Duration(rand.Intn(2000)) * time.Millisecond)
	spin := byte(0)
	var queue []queuedPacket
	n := packets/2 + rand.Intn(packets+1)
	for i := 0; i < n; i++ {
		fromClient := i%2 == 0
		var payload []byte
		switch {
		case i < 2:
			payload = longHeaderPayload(longInitial)
		case i < 4:
			payload = longHeaderPayload(longHandshake)
		default:
			if rand.Intn(4) == 0 {
				spin ^= 1
			}
			payload = shortHeaderPayload(spin)
		}

		srcIP, dstIP := clientIP, serverIP
		srcPort, dstPort := clientPort, serverPort
		if !fromClient {
			srcIP, dstIP = serverIP, clientIP
			srcPort, dstPort = serverPort, clientPort
		}

		ethLayer := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ipLayer := &layers.IPv4{
			SrcIP:    srcIP,
			DstIP:    dstIP,
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
		}
		udpLayer := &layers.UDP{
			SrcPort: srcPort,
			DstPort: dstPort,
		}
		udpLayer.SetNetworkLayerForChecksum(ipLayer)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		queue = append(queue, queuedPacket{ts: ts, data: append([]byte(nil), buf.Bytes()...)})
		ts = ts.Add(time.Duration(rand.Intn(20)+1) * time.Millisecond)
	}
	return queue
}

// longHeaderPayload lays out first byte, version 1, connection IDs and random
// frame bytes.
func longHeaderPayload(first byte) []byte {
	payload := []byte{first, 0x00, 0x00, 0x00, 0x01, 0x08}
	cid := make([]byte, 8)
	rand.Read(cid)
	payload = append(payload, cid...)
	payload = append(payload, 0x08)
	rand.Read(cid)
	payload = append(payload, cid...)
	frames := make([]byte, rand.Intn(1100)+100)
	rand.Read(frames)
	return append(payload, frames...)
}

func shortHeaderPayload(spin byte) []byte {
	first := byte(shortBase)
	if spin == 1 {
		first |= spinBit
	}
	payload := []byte{first}
	cid := make([]byte, 8)
	rand.Read(cid)
	payload = append(payload, cid...)
	frames := make([]byte, rand.Intn(1200)+30)
	rand.Read(frames)
	return append(payload, frames...)
}
