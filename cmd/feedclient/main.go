package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// feedclient replays recorded surface snapshots against a running engine.
// The input file holds one JSON-encoded snapshot per line, in the shape the
// /v1/snapshots endpoint accepts. Lines are pushed at a fixed interval to
// simulate a live observer process.
func main() {
	feedFile := flag.String("feed", "testdata/meeting-feed.jsonl", "Path to JSONL snapshot feed")
	serverAddr := flag.String("server", "http://localhost:8080", "Engine base URL")
	interval := flag.Duration("interval", 300*time.Millisecond, "Delay between snapshots")
	flag.Parse()

	f, err := os.Open(*feedFile)
	if err != nil {
		log.Fatalf("Failed to open feed file: %v", err)
	}
	defer f.Close()

	endpoint := *serverAddr + "/v1/snapshots"
	client := &http.Client{Timeout: 10 * time.Second}

	log.Printf("Replaying %s against %s every %v", *feedFile, endpoint, *interval)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lineNum, sent int
	startTime := time.Now()

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			log.Fatalf("Line %d is not valid JSON", lineNum)
		}

		resp, err := client.Post(endpoint, "application/json", bytes.NewReader(line))
		if err != nil {
			log.Fatalf("Failed to push snapshot %d: %v", lineNum, err)
		}
		if resp.StatusCode != http.StatusAccepted {
			resp.Body.Close()
			log.Fatalf("Snapshot %d rejected: %s", lineNum, resp.Status)
		}
		resp.Body.Close()

		sent++
		if sent%10 == 0 {
			log.Printf("Pushed %d snapshots", sent)
		}

		time.Sleep(*interval)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read feed: %v", err)
	}

	elapsed := time.Since(startTime)
	fmt.Printf("Finished: %d snapshots in %v\n", sent, elapsed)
}
