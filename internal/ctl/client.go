package ctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpClient allows for a queued camera acquisition on the daemon side.
var httpClient = &http.Client{Timeout: 35 * time.Second}

// getJSON sends a GET request and decodes the JSON response into dst.
func getJSON(baseURL, path string, dst any) error {
	url := strings.TrimRight(baseURL, "/") + path
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, dst)
}

// CommandResult mirrors the daemon's reply to every control request.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  string `json:"status"`
}

// postCommand sends a POST and decodes the command result. Non-2xx replies
// that still carry a result are returned as results, not errors, so the
// caller can show the daemon's status line.
func postCommand(baseURL, path string, body any) (CommandResult, error) {
	url := strings.TrimRight(baseURL, "/") + path
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return CommandResult{}, err
		}
		reqBody = bytes.NewReader(b)
	}
	resp, err := httpClient.Post(url, "application/json", reqBody)
	if err != nil {
		return CommandResult{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return CommandResult{}, err
	}
	var res CommandResult
	if jerr := json.Unmarshal(b, &res); jerr != nil || (res.Status == "" && res.Error == "" && !res.OK) {
		msg := strings.TrimSpace(string(b))
		if msg != "" {
			return CommandResult{}, fmt.Errorf("HTTP %s: %s", resp.Status, msg)
		}
		return CommandResult{}, fmt.Errorf("HTTP %s from %s", resp.Status, path)
	}
	return res, nil
}

// decodeJSON decodes a JSON response body into dst. It checks the status code
// and returns an error with the body for non-2xx responses.
func decodeJSON(resp *http.Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		if msg != "" {
			return fmt.Errorf("HTTP %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("HTTP %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// printJSON prints v as indented JSON to stdout.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
