// Command smoke-auth runs the full account lifecycle against a live server:
// register, verify, login, whoami, logout. The server must run with
// GATELIST_EXPOSE_VERIFICATION_TOKENS=true so the verification token comes
// back in the register response.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("GATELIST_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 5 * time.Second}

	email := fmt.Sprintf("smoke-%d@example.com", rand.Int())
	password := "smoke-test-password"

	var registered struct {
		VerificationToken string `json:"verification_token"`
		User              struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	post(client, base+"/v1/auth/register", map[string]string{
		"email": email, "password": password, "name": "Smoke Test",
	}, http.StatusCreated, &registered)
	if registered.VerificationToken == "" {
		log.Fatal("no verification token in register response; is GATELIST_EXPOSE_VERIFICATION_TOKENS set?")
	}

	post(client, base+"/v1/auth/verify", map[string]string{
		"token": registered.VerificationToken,
	}, http.StatusOK, nil)

	var loggedIn struct {
		Token string `json:"token"`
	}
	post(client, base+"/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, http.StatusOK, &loggedIn)
	if loggedIn.Token == "" {
		log.Fatal("login returned no bearer token")
	}

	var me struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	get(client, base+"/v1/auth/me", loggedIn.Token, http.StatusOK, &me)
	if me.User.ID != registered.User.ID {
		log.Fatalf("identity mismatch: registered %s, resolved %s", registered.User.ID, me.User.ID)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+loggedIn.Token)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}

	fmt.Printf("✅ auth smoke test passed: user=%s\n", me.User.ID)
}

func post(client *http.Client, url string, body map[string]string, wantStatus int, out any) {
	payload, _ := json.Marshal(body)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("POST %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("POST %s: decode: %v", url, err)
		}
	}
}

func get(client *http.Client, url, bearer string, wantStatus int, out any) {
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("GET %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("GET %s: decode: %v", url, err)
		}
	}
}
