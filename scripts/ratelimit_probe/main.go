package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginEnvelope struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type violationBody struct {
	Message      string `json:"message"`
	Window       string `json:"window"`
	CurrentCount int64  `json:"current_count"`
	ResetAt      string `json:"reset_at"`
}

type probeResult struct {
	Index     int
	Status    int
	Limit     string
	Remaining string
	Reset     string
	Window    string
	Duration  time.Duration
	Error     error
}

func main() {
	var (
		base        string
		email       string
		password    string
		endpoint    string
		requests    int
		timeout     time.Duration
		expectLimit bool
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&email, "email", "", "Account email used to log in")
	flag.StringVar(&password, "password", "", "Account password")
	flag.StringVar(&endpoint, "endpoint", "/api/v1/workspaces", "Endpoint to probe")
	flag.IntVar(&requests, "requests", 15, "Number of requests to fire")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.BoolVar(&expectLimit, "expect-limit", true, "Exit non-zero when the limiter never engages")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("both -email and -password are required")
	}
	if requests <= 0 {
		log.Fatal("-requests must be positive")
	}

	client := &http.Client{Timeout: timeout}

	token, err := login(client, base, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	results := make([]probeResult, 0, requests)
	for i := 1; i <= requests; i++ {
		results = append(results, probe(client, base, endpoint, token, i))
	}

	limited := printReport(results, endpoint)

	if expectLimit && limited == 0 {
		fmt.Println("limiter never engaged")
		os.Exit(1)
	}
}

func login(client *http.Client, base, email, password string) (string, error) {
	payload, err := json.Marshal(loginPayload{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(base, "/") + "/api/v1/auth/login"
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var envelope loginEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if envelope.Error != nil {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, envelope.Error.Message)
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("no access token in response")
	}
	return envelope.Data.AccessToken, nil
}

func probe(client *http.Client, base, endpoint, token string, index int) probeResult {
	result := probeResult{Index: index}

	path := endpoint
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		result.Error = err
		return result
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close() //nolint:errcheck

	result.Status = resp.StatusCode
	result.Limit = resp.Header.Get("X-RateLimit-Limit-Minute")
	result.Remaining = resp.Header.Get("X-RateLimit-Remaining")
	result.Reset = resp.Header.Get("X-RateLimit-Reset")

	if resp.StatusCode == http.StatusTooManyRequests {
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil {
			var violation violationBody
			if json.Unmarshal(body, &violation) == nil {
				result.Window = violation.Window
			}
		}
	}

	return result
}

func printReport(results []probeResult, endpoint string) int {
	fmt.Println("Rate Limit Probe Report")
	fmt.Println("=======================")
	fmt.Printf("Endpoint: %s\n\n", endpoint)

	var allowed, limited, failed int
	firstLimited := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
			fmt.Printf("[ERR ] #%02d error=%v\n", res.Index, res.Error)
			continue
		}
		label := "OK  "
		switch {
		case res.Status == http.StatusTooManyRequests:
			label = "429 "
			limited++
			if firstLimited == 0 {
				firstLimited = res.Index
			}
		case res.Status >= 400:
			label = "FAIL"
			failed++
		default:
			allowed++
		}
		fmt.Printf("[%s] #%02d status=%d limit-minute=%s remaining=%s reset=%s", label, res.Index, res.Status, res.Limit, res.Remaining, res.Reset)
		if res.Window != "" {
			fmt.Printf(" window=%s", res.Window)
		}
		fmt.Printf(" (%s)\n", res.Duration)
	}

	fmt.Printf("\nAllowed: %d, Limited: %d, Failed: %d\n", allowed, limited, failed)
	if firstLimited > 0 {
		fmt.Printf("Limiter engaged at request #%d\n", firstLimited)
	}
	return limited
}
