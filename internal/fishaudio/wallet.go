package fishaudio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// APICredit is the account's remaining API credit balance.
type APICredit struct {
	Credit        float64 `json:"credit"`
	HasFreeCredit bool    `json:"has_free_credit"`
}

// APICredit returns the current API credit balance.
func (c *Client) APICredit(ctx context.Context) (*APICredit, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/wallet/self/api-credit", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var credit APICredit
	if err := json.NewDecoder(resp.Body).Decode(&credit); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &credit, nil
}
