package ctl

import (
	"encoding/json"
	"strings"
)

// ResultOptions configures the result command, which plays the bridge's
// part by pushing an answer to the daemon.
type ResultOptions struct {
	Text string // raw answer; sent as a JSON string
	Raw  bool   // send Text as the data value verbatim (must be JSON)
	JSON bool
}

// Result posts an analysis answer to /api/analysis/result.
func Result(baseURL string, opts ResultOptions) error {
	body := map[string]any{}
	if opts.Text != "" {
		if opts.Raw {
			body["data"] = json.RawMessage(opts.Text)
		} else {
			body["data"] = opts.Text
		}
	}
	return sendControl(strings.TrimRight(baseURL, "/"), "/api/analysis/result", body, "RESULT", opts.JSON)
}
