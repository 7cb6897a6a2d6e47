package main

import (
	"flag"
	"log"

	"QuicSieve/internal/config"
	"QuicSieve/internal/extract"
	"QuicSieve/internal/model"
	"QuicSieve/internal/report"
	"QuicSieve/internal/sink"
	"QuicSieve/pkg/tshark"
)

func main() {
	// 1. Parse command-line flags
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	captureRoot := flag.String("root", "", "override extract.capture_root")
	outputRoot := flag.String("out", "", "override extract.output_root")
	flag.Parse()

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *captureRoot != "" {
		cfg.Extract.CaptureRoot = *captureRoot
	}
	if *outputRoot != "" {
		cfg.Extract.OutputRoot = *outputRoot
	}
	if cfg.Extract.CaptureRoot == "" {
		log.Fatalf("No capture root configured, set extract.capture_root or pass -root")
	}
	log.Println("Configuration loaded successfully.")

	// 3. Initialize the decoder and row writers
	decoder := tshark.NewDecoder(cfg.Decoder.TsharkPath, cfg.Decoder.ExtraArgs)
	csvSink, err := sink.NewCSVSink(cfg.Extract.OutputRoot)
	if err != nil {
		log.Fatalf("Failed to create CSV sink: %v", err)
	}
	writers := []model.RowWriter{csvSink}
	if cfg.Sinks.ClickHouse.Enabled {
		chWriter, err := sink.NewClickHouseWriter(cfg.Sinks.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		writers = append(writers, chWriter)
	}
	defer func() {
		for _, w := range writers {
			w.Close()
		}
	}()

	// 4. Initialize the optional event publisher
	var publisher model.EventPublisher
	if cfg.Events.Enabled {
		pub, err := report.NewPublisher(cfg.Events)
		if err != nil {
			log.Fatalf("Failed to create event publisher: %v", err)
		}
		defer pub.Close()
		publisher = pub
	}

	// 5. Run the extraction pipeline
	summary, err := extract.New(cfg.Extract, decoder, writers, publisher).Run()
	if err != nil {
		log.Fatalf("Extraction failed to start: %v", err)
	}

	// 6. Persist the run summary
	path, err := extract.WriteSummary(summary, cfg.Extract.OutputRoot)
	if err != nil {
		log.Fatalf("Failed to write run summary: %v", err)
	}
	log.Printf("Summary written to %s", path)
	log.Printf("Done: %d/%d files ok, %d flows, %d rows, %d malformed records",
		summary.FilesOK, summary.FilesTotal, summary.Flows, summary.Rows, summary.MalformedRecords)
}
