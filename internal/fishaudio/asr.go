package fishaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// ASRRequest is a transcription request. The audio must be in a format the
// API can decode (mp3, wav, ...).
type ASRRequest struct {
	Audio            []byte `msgpack:"audio"`
	Language         string `msgpack:"language,omitempty"` // Auto-detected when empty
	IgnoreTimestamps bool   `msgpack:"ignore_timestamps"`  // False to get per-segment timestamps
}

// ASRSegment is one timestamped span of the transcript.
type ASRSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}

// ASRResponse is the transcription result.
type ASRResponse struct {
	Text     string       `json:"text"`
	Duration float64      `json:"duration"` // seconds of audio processed
	Segments []ASRSegment `json:"segments"`
}

// Transcribe converts speech to text. The request body is MessagePack, the
// response is JSON.
func (c *Client) Transcribe(ctx context.Context, req ASRRequest) (*ASRResponse, error) {
	body, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/asr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/msgpack")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result ASRResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}
