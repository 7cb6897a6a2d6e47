package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"QuicSieve/internal/config"
	"QuicSieve/internal/report"
)

// watch tails the pipeline's NATS events, useful while a long extraction run
// is going on another machine.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	subscriber, err := report.NewSubscriber(cfg.Events)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer subscriber.Close()

	err = subscriber.Start(func(subject string, data []byte) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			fmt.Printf("--- %s ---\n%s\n", subject, data)
			return
		}
		fmt.Printf("--- %s ---\n%s\n", subject, pretty.String())
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received.")
}
