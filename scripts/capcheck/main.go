package main

import (
	"fmt"
	"log"
	"os"

	"QuicSieve/internal/capture"
	"QuicSieve/pkg/pcap"
)

// capcheck walks a capture and reports how much QUIC-looking traffic it
// holds, a quick sanity check before a long extraction run.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/capcheck/main.go <path_to_capture_file>")
		os.Exit(1)
	}
	reader, err := pcap.NewReader(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()
	if err := reader.SetFilter("udp"); err != nil {
		log.Fatalf("Failed to set filter: %v", err)
	}

	out := make(chan *capture.PacketInfo)
	skippedCh := make(chan int, 1)
	go func() { skippedCh <- reader.ReadPackets(out) }()

	udpCount, quicCount, shown := 0, 0, 0
	flows := make(map[string]bool)
	for info := range out {
		udpCount++
		longHeader, ok := capture.QUICHeader(info.Payload)
		if !ok {
			continue
		}
		quicCount++
		flows[info.FlowID()] = true

		if shown < 5 {
			shown++
			form := "short"
			if longHeader {
				form = "long"
			}
			fmt.Printf("[%s] %s -> %s header=%s len=%d\n",
				info.Timestamp.Format("15:04:05.000"),
				info.Src.String(), info.Dst.String(), form, len(info.Payload))
		}
	}
	skipped := <-skippedCh

	fmt.Printf("\n%d UDP packets, %d QUIC candidates across %d flows, %d skipped\n",
		udpCount, quicCount, len(flows), skipped)
}
