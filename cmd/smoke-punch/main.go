package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Exercises a running punchclock-api end to end: issue a token, punch in,
// punch out, then verify the timesheet recorded the interval.
func main() {
	base := os.Getenv("PUNCHCLOCK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	group := "smoke"
	member := fmt.Sprintf("smoke-%d", time.Now().UnixNano())

	client := &http.Client{Timeout: 5 * time.Second}

	token := obtainToken(client, base, member)
	auth := "Bearer " + token

	in := punchOnce(client, base, group, auth)
	if in["direction"] != "in" {
		log.Fatalf("expected first punch to clock in, got %v", in["direction"])
	}

	time.Sleep(1100 * time.Millisecond)

	out := punchOnce(client, base, group, auth)
	if out["direction"] != "out" {
		log.Fatalf("expected second punch to clock out, got %v", out["direction"])
	}

	sheet := fetchJSON(client, base+"/v1/groups/"+group+"/members/"+member+"/timesheet", auth)
	total, _ := sheet["total_seconds"].(float64)
	if total < 1 {
		log.Fatalf("expected at least one second recorded, got %v", total)
	}
	if open, _ := sheet["open"].(bool); open {
		log.Fatalf("expected closed sheet after punch out")
	}

	fmt.Printf("✅ punchclock smoke test passed: member=%s total=%.3fs\n", member, total)
}

func obtainToken(client *http.Client, base, member string) string {
	payload, _ := json.Marshal(map[string]any{"member": member})
	resp, err := client.Post(base+"/v1/auth/token", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("token request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("token status: %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Fatalf("decode token: %v", err)
	}
	if body.Token == "" {
		log.Fatal("empty token issued")
	}
	return body.Token
}

func punchOnce(client *http.Client, base, group, auth string) map[string]any {
	req, err := http.NewRequest(http.MethodPost, base+"/v1/groups/"+group+"/punch", nil)
	if err != nil {
		log.Fatalf("punch request: %v", err)
	}
	req.Header.Set("Authorization", auth)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("punch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("punch status: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Fatalf("decode punch: %v", err)
	}
	return body
}

func fetchJSON(client *http.Client, url, auth string) map[string]any {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", auth)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("fetch %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("fetch %s status: %d", url, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
	return body
}
