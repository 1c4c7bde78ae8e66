package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MetadataResponse is the subset of a cloud provider's metadata-service
// response the driver needs to discover the proxy endpoint and contact
// points without a bundle on disk.
type MetadataResponse struct {
	ContactInfo struct {
		Type        string   `json:"type"`
		LocalDC     string   `json:"local_dc"`
		ContactPoints []string `json:"contact_points"`
		ProxyURL    string   `json:"sni_proxy_address"`
	} `json:"contact_info"`
}

// MetadataClient fetches cluster metadata from a cloud provider's HTTPS
// metadata endpoint, authenticating with the same client certificate the
// secure connect bundle provides.
type MetadataClient struct {
	HTTPClient *http.Client
	Endpoint   string
}

// NewMetadataClient builds a client that presents bundle's TLS identity
// when talking to endpoint.
func NewMetadataClient(bundle *Bundle, endpoint string) *MetadataClient {
	return &MetadataClient{
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: bundle.TLS,
			},
		},
		Endpoint: endpoint,
	}
}

// Fetch retrieves and decodes the metadata-service response.
func (c *MetadataClient) Fetch(ctx context.Context) (*MetadataResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: building metadata request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud: fetching metadata from %s: %w", c.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud: metadata service returned status %d", resp.StatusCode)
	}

	var out MetadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cloud: decoding metadata response: %w", err)
	}
	return &out, nil
}
