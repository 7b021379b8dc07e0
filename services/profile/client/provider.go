// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

// ClientProvider exposes birth data for clients. Client persistence lives
// in another service; this is the read-only boundary to it.
type ClientProvider interface {
	GetClient(ctx context.Context, tenant, clientID string) (*datatypes.ClientRecord, error)
}

// HTTPClientProvider reads client records from the client service.
type HTTPClientProvider struct {
	baseURL string
	httpc   HTTPClient
}

// NewClientProvider builds a provider for the given base URL.
func NewClientProvider(baseURL string) *HTTPClientProvider {
	return &HTTPClientProvider{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client, for tests.
func (p *HTTPClientProvider) WithHTTPClient(httpc HTTPClient) *HTTPClientProvider {
	p.httpc = httpc
	return p
}

// GetClient fetches one client record. A 404 maps to
// datatypes.ErrClientNotFound.
func (p *HTTPClientProvider) GetClient(ctx context.Context, tenant, clientID string) (*datatypes.ClientRecord, error) {
	url := p.baseURL + "/v1/tenants/" + tenant + "/clients/" + clientID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build client request: %w", err)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call client service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, datatypes.ErrClientNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &datatypes.UpstreamError{Status: resp.StatusCode, Task: "client_lookup"}
	}

	var record datatypes.ClientRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode client record: %w", err)
	}
	if record.TenantID == "" {
		record.TenantID = tenant
	}
	if record.ClientID == "" {
		record.ClientID = clientID
	}
	return &record, nil
}
