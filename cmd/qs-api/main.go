package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"QuicSieve/internal/config"
	"QuicSieve/internal/query"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Sinks.ClickHouse.Enabled {
		log.Fatalf("ClickHouse sink is disabled in config. API server cannot start.")
	}

	// Initialize querier
	querier, err := query.NewClickHouseQuerier(cfg.Sinks.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}
	defer querier.Close()

	// Initialize router
	r := mux.NewRouter()

	// Create API handler with querier dependency
	apiHandler := &APIHandler{querier: querier}

	// Define API routes
	r.HandleFunc("/api/v1/overview", apiHandler.overviewHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/{id}", apiHandler.traceFlowHandler).Methods("GET")

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
}

// overviewHandler reports per-window aggregates over the stored rows. An
// optional window query parameter narrows it to one category.
func (h *APIHandler) overviewHandler(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	log.Printf("Received overview request, window: %q", window)
	summaries, err := h.querier.Overview(r.Context(), window)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query overview: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summaries)
}

// traceFlowHandler returns every stored row of one flow.
func (h *APIHandler) traceFlowHandler(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["id"]
	log.Printf("Received flow trace request for: %s", flowID)
	rows, err := h.querier.TraceFlow(r.Context(), flowID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to trace flow: %v", err), http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, fmt.Sprintf("no rows stored for flow %s", flowID), http.StatusNotFound)
		return
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
