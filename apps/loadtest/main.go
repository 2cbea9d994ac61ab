// Command loadtest fires concurrent orders for one variant against a running
// gateway and reports how many succeeded, conflicted on stock or were throttled.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type runner struct {
	base   string
	client *http.Client

	mu        sync.Mutex
	byStatus  map[int]int
	transport int
}

func (r *runner) post(path, token string, body any) (int, []byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, r.base+path, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// buyer 注册一个临时账号并换取 access token
func (r *runner) buyer() (string, error) {
	email := fmt.Sprintf("load-%s@example.com", uuid.NewString()[:8])
	const password = "load-test-pass"
	status, body, err := r.post("/api/v1/auth/register", "", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("register %s: %d %s", email, status, body)
	}
	status, body, err = r.post("/api/v1/auth/token", "", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("token %s: %d %s", email, status, body)
	}
	var pair struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &pair); err != nil {
		return "", err
	}
	return pair.Access, nil
}

func (r *runner) order(token, variantID string, quantity int, wg *sync.WaitGroup) {
	defer wg.Done()
	status, _, err := r.post("/api/v1/orders", token, map[string]any{
		"items": []map[string]any{{"variant_id": variantID, "quantity": quantity}},
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.transport++
		return
	}
	r.byStatus[status]++
}

func main() {
	base := flag.String("gateway", "http://localhost:8080", "gateway base URL")
	variantID := flag.String("variant", "", "variant to order")
	buyers := flag.Int("buyers", 50, "concurrent buyers")
	quantity := flag.Int("quantity", 1, "quantity per order")
	flag.Parse()
	if *variantID == "" {
		log.Fatal("-variant is required")
	}

	r := &runner{
		base:     *base,
		client:   &http.Client{Timeout: 10 * time.Second},
		byStatus: map[int]int{},
	}

	// 1. 先准备好所有买家，避免注册耗时影响并发
	tokens := make([]string, 0, *buyers)
	for i := 0; i < *buyers; i++ {
		token, err := r.buyer()
		if err != nil {
			log.Fatalf("prepare buyer: %v", err)
		}
		tokens = append(tokens, token)
	}

	// 2. 同时下单
	fmt.Printf("ordering variant %s x%d with %d buyers\n", *variantID, *quantity, *buyers)
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(len(tokens))
	for _, token := range tokens {
		go r.order(token, *variantID, *quantity, &wg)
	}
	wg.Wait()

	fmt.Printf("finished in %v\n", time.Since(start))
	fmt.Printf("created (201):    %d\n", r.byStatus[http.StatusCreated])
	fmt.Printf("out of stock (409): %d\n", r.byStatus[http.StatusConflict])
	fmt.Printf("throttled (429):  %d\n", r.byStatus[http.StatusTooManyRequests])
	for status, n := range r.byStatus {
		switch status {
		case http.StatusCreated, http.StatusConflict, http.StatusTooManyRequests:
			continue
		}
		fmt.Printf("other (%d):       %d\n", status, n)
	}
	if r.transport > 0 {
		fmt.Printf("transport errors: %d\n", r.transport)
	}
}
