package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"QuicSieve/internal/config"
)

func main() {
	// Define command-line flags
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	window := flag.String("window", "", "Window category to filter on (e.g. 'full' or '10').")
	flowID := flag.String("flow", "", "Trace one flow instead of the overview.")
	apiAddr := flag.String("addr", "http://localhost:8080", "Base URL of the qs-api server.")
	configPath := flag.String("config", "configs/config.yaml", "Config file, used for direct ClickHouse access.")

	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiAddr, *window, *flowID)
	case "direct":
		directQueryClickHouse(*configPath, *window)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

// --- API Query Logic ---
func queryViaAPI(addr, window, flowID string) {
	apiURL := addr + "/api/v1/overview"
	if flowID != "" {
		apiURL = addr + "/api/v1/flows/" + url.PathEscape(flowID)
	} else if window != "" {
		apiURL += "?window=" + url.QueryEscape(window)
	}

	log.Printf("Sending request to %s", apiURL)

	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	err = json.Indent(&prettyJSON, respBody, "", "  ")
	if err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}

	log.Println("---")
	fmt.Println(prettyJSON.String())
}

// --- Direct ClickHouse Query Logic ---
func directQueryClickHouse(configPath, window string) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ch := cfg.Sinks.ClickHouse

	connOpts := clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", ch.Host, ch.Port)},
		Auth: clickhouse.Auth{
			Database: ch.Database,
			Username: ch.Username,
			Password: ch.Password,
		},
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf(`
		SELECT
			Window,
			uniqExact(CaptureFile) AS Captures,
			uniqExact(FlowID) AS Flows,
			COUNT(*) AS RowCount,
			SUM(total_bytes) AS TotalBytes,
			AVG(total_packets) AS AvgPackets
		FROM %s
	`, ch.Table))

	args := []interface{}{}
	if window != "" {
		queryBuilder.WriteString(" WHERE Window = ?")
		args = append(args, window)
	}
	queryBuilder.WriteString(" GROUP BY Window ORDER BY Window != 'full', toUInt32OrZero(Window)")

	conn, err := clickhouse.Open(&connOpts)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()

	log.Println("Successfully connected to ClickHouse.")

	rows, err := conn.Query(context.Background(), queryBuilder.String(), args...)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	defer rows.Close()

	log.Println("--- Window Summaries (Direct) ---")

	var foundResult bool
	for rows.Next() {
		foundResult = true
		var (
			queriedWindow string
			captures      uint64
			flows         uint64
			rowCount      uint64
			totalBytes    float64
			avgPackets    float64
		)

		if err := rows.Scan(&queriedWindow, &captures, &flows, &rowCount, &totalBytes, &avgPackets); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		fmt.Printf("Window: %s\n", queriedWindow)
		fmt.Printf("  Captures: %d\n", captures)
		fmt.Printf("  Flows: %d\n", flows)
		fmt.Printf("  Rows: %d\n", rowCount)
		fmt.Printf("  TotalBytes: %.0f\n", totalBytes)
		fmt.Printf("  AvgPackets: %.2f\n", avgPackets)
		fmt.Println("---------------------")
	}

	if !foundResult {
		log.Println("No data found for the specified criteria.")
	}

	if err := rows.Err(); err != nil {
		log.Printf("An error occurred during row iteration: %v", err)
	}
}
