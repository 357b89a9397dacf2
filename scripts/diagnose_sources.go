// Diagnose every source in the registry: fetch each URL once, run the
// matching parser, and print a JSON report. Useful for verifying selectors
// and feed health before deploying a registry change.
//
// Usage:
//
//	go run scripts/diagnose_sources.go -registry configs/sources.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"bioterminal/internal/config"
	"bioterminal/internal/infra/scraper"
)

// SourceDiagnostic is the per-source probe result.
type SourceDiagnostic struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Type         string `json:"type"`
	Status       string `json:"status"` // OK, HTTP_ERROR, PARSE_ERROR, EMPTY, FETCH_ERROR
	HTTPCode     int    `json:"http_code,omitempty"`
	RecordCount  int    `json:"record_count"`
	LatestDate   string `json:"latest_date,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
}

func main() {
	registryPath := flag.String("registry", "configs/sources.yaml", "source registry file")
	timeout := flag.Duration("timeout", 30*time.Second, "per-source fetch timeout")
	flag.Parse()

	registry, err := config.LoadRegistry(*registryPath)
	if err != nil {
		log.Fatalf("load registry: %v", err)
	}

	client := &http.Client{Timeout: *timeout}
	results := make([]SourceDiagnostic, 0, len(registry.Sources))
	for _, sc := range registry.Sources {
		results = append(results, diagnose(client, sc))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatalf("encode results: %v", err)
	}

	for _, r := range results {
		if r.Status != "OK" {
			os.Exit(1)
		}
	}
}

func diagnose(client *http.Client, sc config.SourceConfig) SourceDiagnostic {
	src := sc.Source()
	diag := SourceDiagnostic{ID: src.ID, URL: src.URL, Type: src.SourceType}

	parse, err := scraper.ParserFor(src.SourceType)
	if err != nil {
		diag.Status = "PARSE_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}

	start := time.Now()
	resp, err := client.Get(src.URL)
	diag.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		diag.Status = "FETCH_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}
	defer func() { _ = resp.Body.Close() }()

	diag.HTTPCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		diag.Status = "HTTP_ERROR"
		diag.ErrorMessage = fmt.Sprintf("unexpected status: %s", resp.Status)
		return diag
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		diag.Status = "FETCH_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}

	records, err := parse(context.Background(), body, src)
	if err != nil {
		diag.Status = "PARSE_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}

	diag.RecordCount = len(records)
	if len(records) == 0 {
		diag.Status = "EMPTY"
		return diag
	}

	latest := records[0].PublishedAt
	for _, r := range records[1:] {
		if r.PublishedAt.After(latest) {
			latest = r.PublishedAt
		}
	}
	diag.LatestDate = latest.Format(time.RFC3339)
	diag.Status = "OK"
	return diag
}
