package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// HealthReport is the daemon's detailed /healthz answer.
type HealthReport struct {
	Healthy bool                      `json:"healthy"`
	Checks  map[string]map[string]any `json:"checks,omitempty"`
}

// fetchHealth asks /healthz for component checks. The body is decoded for
// both 200 and 503, since an unhealthy daemon still explains itself.
func fetchHealth(baseURL string) (int, HealthReport, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+"/healthz", nil)
	if err != nil {
		return 0, HealthReport{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, HealthReport{}, err
	}
	defer resp.Body.Close()

	var rep HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return resp.StatusCode, HealthReport{}, fmt.Errorf("HTTP %s: decode health: %w", resp.Status, err)
	}
	return resp.StatusCode, rep, nil
}

// Health reports daemon liveness and each component check via GET /healthz.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	status, rep, err := fetchHealth(baseURL)
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"healthy": rep.Healthy, "url": baseURL, "checks": rep.Checks})
	}

	fmt.Println()
	if rep.Healthy {
		fmt.Printf("  %s  lensd is reachable at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  lensd returned HTTP %d at %s\n", colorize(red, "UNHEALTHY"), status, colorize(dim, baseURL))
	}
	if len(rep.Checks) > 0 {
		fmt.Println()
		for _, line := range checkLines(rep.Checks) {
			fmt.Println("  " + line)
		}
	}
	fmt.Println()

	return nil
}

// checkLines renders one line per check, sorted by name.
func checkLines(checks map[string]map[string]any) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		c := checks[name]
		ok, _ := c["ok"].(bool)
		mark := colorize(green, "ok  ")
		if !ok {
			mark = colorize(red, "FAIL")
		}
		line := mark + "  " + padRight(name, 12)
		if detail := checkDetail(c); detail != "" {
			line += "  " + colorize(dim, detail)
		}
		lines = append(lines, line)
	}
	return lines
}

// checkDetail prefers the error, then whichever descriptive field the check
// carries.
func checkDetail(c map[string]any) string {
	for _, k := range []string{"error", "path", "backend", "kind"} {
		if v, ok := c[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
