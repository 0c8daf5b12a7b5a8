package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Fires concurrent checkout requests for one product against a running
// server to observe the no-oversell behavior under contention.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	productID := flag.Int64("product", 1, "product id to sell")
	requests := flag.Int("requests", 50, "number of concurrent requests")
	quantity := flag.Int("quantity", 1, "units per request")
	flag.Parse()

	body := map[string]any{
		"items": []map[string]any{
			{"product_id": *productID, "quantity": *quantity},
		},
		"payment_method": "cash",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var successCount, soldOutCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			req, err := http.NewRequest(http.MethodPost, *baseURL+"/api/v1/sales", bytes.NewReader(payload))
			if err != nil {
				errorCount.Add(1)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-User-ID", fmt.Sprintf("stress-%d", id))

			resp, err := client.Do(req)
			if err != nil {
				errorCount.Add(1)
				return
			}
			defer resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusCreated:
				successCount.Add(1)
			case http.StatusBadRequest:
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("requests:  %d\n", *requests)
	fmt.Printf("succeeded: %d\n", successCount.Load())
	fmt.Printf("sold out:  %d\n", soldOutCount.Load())
	fmt.Printf("errors:    %d\n", errorCount.Load())
	fmt.Printf("elapsed:   %s\n", elapsed)
}
