package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	target      int64
	amount      int64
	profileBase int64
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Funding recorded
	fail422       uint64 // Rejected by the outstanding-amount check
	failOther     uint64
	raised        int64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 50, "Number of concurrent investors")
	flag.Int64Var(&target, "target", 10_000, "Contract target amount")
	flag.Int64Var(&amount, "amount", 300, "Amount each funding attempt offers")
	flag.Int64Var(&profileBase, "profile-base", time.Now().Unix()%1_000_000*1000, "First profile id used by this run")
}

type client struct {
	http *http.Client
}

func (c client) do(method, path string, profile int64, body, out interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, targetURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if profile > 0 {
		req.Header.Set("X-Profile-ID", fmt.Sprint(profile))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (c client) mustDo(method, path string, profile int64, body, out interface{}) {
	code, err := c.do(method, path, profile, body, out)
	if err != nil || code >= 300 {
		log.Fatalf("%s %s: status=%d err=%v", method, path, code, err)
	}
}

type idResponse struct {
	ID int64 `json:"id"`
}

type fundingRequestResponse struct {
	Contract struct {
		ID                int64  `json:"id"`
		Status            string `json:"status"`
		RaisedAmount      int64  `json:"raised_amount"`
		OutstandingAmount int64  `json:"outstanding_amount"`
	} `json:"contract"`
}

func main() {
	flag.Parse()
	c := client{http: &http.Client{Timeout: 5 * time.Second}}
	requester, provider := profileBase+1, profileBase+2

	// 1. Contract setup
	var rfp, proposal idResponse
	c.mustDo("POST", "/rfps", requester, map[string]interface{}{"title": "benchmark rfp", "cost": target}, &rfp)
	c.mustDo("POST", fmt.Sprintf("/rfps/%d/proposals", rfp.ID), provider, map[string]interface{}{"title": "benchmark proposal", "cost": target}, &proposal)
	c.mustDo("POST", fmt.Sprintf("/proposals/%d/accept", proposal.ID), requester, nil, nil)
	var fr fundingRequestResponse
	c.mustDo("POST", fmt.Sprintf("/proposals/%d/funding-requests", proposal.ID), provider, map[string]interface{}{"repayment": target + target/10}, &fr)
	contractID := fr.Contract.ID

	// 2. Investor wallets
	for i := 0; i < concurrency; i++ {
		investor := profileBase + 100 + int64(i)
		c.mustDo("POST", "/wallets", 0, map[string]interface{}{
			"id": fmt.Sprintf("bench-%d", investor), "profile_id": investor, "balance": target,
		}, nil)
	}
	log.Printf("Starting Benchmark: contract %d | Workers: %d | Target: %d | Amount: %d", contractID, concurrency, target, amount)

	// 3. Concurrent funding until every worker is turned away
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, c, contractID, profileBase+100+int64(i))
	}
	wg.Wait()
	elapsed := time.Since(start)

	var final fundingRequestResponse
	c.mustDo("GET", fmt.Sprintf("/contracts/%d", contractID), 0, nil, &final.Contract)
	printResults(elapsed, final)

	if final.Contract.RaisedAmount > target || final.Contract.RaisedAmount != atomic.LoadInt64(&raised) {
		log.Fatalf("overfunding detected: raised=%d recorded=%d target=%d",
			final.Contract.RaisedAmount, atomic.LoadInt64(&raised), target)
	}
}

func worker(wg *sync.WaitGroup, c client, contractID, investor int64) {
	defer wg.Done()
	for {
		code, err := c.do("POST", fmt.Sprintf("/contracts/%d/fundings", contractID), investor, map[string]interface{}{"amount": amount}, nil)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			return
		}
		atomic.AddUint64(&totalRequests, 1)
		switch code {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
			atomic.AddInt64(&raised, amount)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
			return
		default:
			atomic.AddUint64(&failOther, 1)
			return
		}
	}
}

func printResults(d time.Duration, final fundingRequestResponse) {
	total := atomic.LoadUint64(&totalRequests)
	results := map[string]interface{}{
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     float64(total) / d.Seconds(),
		"fundings_created":   atomic.LoadUint64(&success201),
		"fundings_rejected":  atomic.LoadUint64(&fail422),
		"errors":             atomic.LoadUint64(&failOther),
		"contract_status":    final.Contract.Status,
		"raised_amount":      final.Contract.RaisedAmount,
		"outstanding_amount": final.Contract.OutstandingAmount,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, err := os.Create("results_funding.json")
	if err != nil {
		log.Printf("could not save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
