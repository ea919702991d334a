package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/fansite/internal/config"
)

// CDNPurger asks the CDN to drop its copies of the cached API responses
type CDNPurger struct {
	endpoint string
	token    string
	files    []string
	client   *http.Client
	logger   *zap.Logger
}

// NewCDNPurger returns nil when purging is not configured
func NewCDNPurger(cfg *config.Config, logger *zap.Logger) *CDNPurger {
	if !cfg.CDN.Enabled() {
		return nil
	}

	endpoint := cfg.CDN.PurgeURL
	if cfg.CDN.ZoneID != "" {
		endpoint = strings.ReplaceAll(endpoint, "{zone}", cfg.CDN.ZoneID)
	}

	base := strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	files := make([]string, 0, len(cfg.CDN.Paths))
	for _, path := range cfg.CDN.Paths {
		files = append(files, base+path)
	}

	return &CDNPurger{
		endpoint: endpoint,
		token:    cfg.CDN.APIToken,
		files:    files,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Purge sends one purge request for all configured paths
func (p *CDNPurger) Purge(ctx context.Context) error {
	body, err := json.Marshal(map[string][]string{"files": p.files})
	if err != nil {
		return fmt.Errorf("failed to marshal purge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create purge request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send purge request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("purge returned status %d: %s", resp.StatusCode, string(msg))
	}

	p.logger.Debug("purged edge cache", zap.Strings("files", p.files))
	return nil
}
