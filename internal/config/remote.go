package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// RemoteOptions holds parameters for fetching config from a dashboard.
type RemoteOptions struct {
	URL     string // e.g. https://dashboard.example.com
	APIKey  string
	DataDir string // local data directory, default ./data
}

// LoadFromRemote fetches the JSON configuration from the dashboard API,
// prepares the local data directory, and returns the validated Config.
func LoadFromRemote(opts RemoteOptions) (*Config, error) {
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}

	url := strings.TrimRight(opts.URL, "/") + "/api/seatwatch/config"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote config: create request: %w", err)
	}
	if opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote config: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("remote config: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote config: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("remote config: parse: %w", err)
	}

	// The dashboard does not know local paths.
	cfg.Watch.DataDir = opts.DataDir
	cfg.Journal.Path = ""
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("remote config: create data dir %q: %w", opts.DataDir, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote config: %w", err)
	}
	return &cfg, nil
}
