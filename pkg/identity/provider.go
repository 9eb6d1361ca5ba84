package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agentharvest/pkg/logger"
)

// Provider supplies the proxy pool. It is consulted exactly once per
// process lifetime, on the rotator's first Acquire.
type Provider interface {
	FetchPool(ctx context.Context) ([]Identity, error)
}

// poolPage is one page of the credential service's proxy listing
type poolPage struct {
	Count   int        `json:"count"`
	Next    string     `json:"next"`
	Results []Identity `json:"results"`
}

// ServiceProvider fetches the proxy pool from an authenticated HTTP
// credential service returning paginated {count, next, results} JSON.
type ServiceProvider struct {
	serviceURL string
	apiToken   string
	pageSize   int
	httpClient *http.Client
	log        logger.Logger
}

// NewServiceProvider creates a provider for the given credential service
func NewServiceProvider(serviceURL, apiToken string, pageSize int) *ServiceProvider {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ServiceProvider{
		serviceURL: serviceURL,
		apiToken:   apiToken,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.GetLogger(),
	}
}

// FetchPool retrieves all pages of the proxy listing
func (p *ServiceProvider) FetchPool(ctx context.Context) ([]Identity, error) {
	var pool []Identity

	pageURL := fmt.Sprintf("%s?mode=direct&page=1&page_size=%d", p.serviceURL, p.pageSize)
	for pageURL != "" {
		page, err := p.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		pool = append(pool, page.Results...)
		pageURL = page.Next
	}

	if len(pool) == 0 {
		return nil, fmt.Errorf("credential service returned an empty proxy list")
	}

	p.log.InfoWithFields("proxy pool fetched", map[string]interface{}{
		"pool_size": len(pool),
	})
	return pool, nil
}

func (p *ServiceProvider) fetchPage(ctx context.Context, pageURL string) (*poolPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential service request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential service response: %w", err)
	}

	var page poolPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse credential service response: %w", err)
	}
	return &page, nil
}
