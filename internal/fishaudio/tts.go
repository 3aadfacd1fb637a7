package fishaudio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// ReferenceAudio is an in-request voice cloning sample.
type ReferenceAudio struct {
	Audio []byte `msgpack:"audio"`
	Text  string `msgpack:"text"`
}

// Prosody controls speed and volume of the synthesized speech.
type Prosody struct {
	Speed  float64 `msgpack:"speed"`  // 0.5-2.0
	Volume float64 `msgpack:"volume"` // dB adjustment
}

// TTSRequest is a synthesis request. The API expects it MessagePack-encoded.
type TTSRequest struct {
	Text        string           `msgpack:"text"`
	ChunkLength int              `msgpack:"chunk_length"` // 100-300
	Format      string           `msgpack:"format"`       // "wav", "pcm", "mp3", "opus"
	MP3Bitrate  int              `msgpack:"mp3_bitrate"`  // 64, 128, 192
	References  []ReferenceAudio `msgpack:"references"`
	ReferenceID string           `msgpack:"reference_id,omitempty"`
	Normalize   bool             `msgpack:"normalize"` // Disable for phoneme/paralanguage control tags
	Latency     string           `msgpack:"latency"`   // "normal" or "balanced"
	Temperature float64          `msgpack:"temperature,omitempty"`
	TopP        float64          `msgpack:"top_p,omitempty"`
	Prosody     *Prosody         `msgpack:"prosody,omitempty"`
}

// NewTTSRequest returns a request for text with the API defaults filled in.
func NewTTSRequest(text string) TTSRequest {
	return TTSRequest{
		Text:        text,
		ChunkLength: 200,
		Format:      "mp3",
		MP3Bitrate:  128,
		Normalize:   true,
		Latency:     "normal",
	}
}

func (c *Client) newTTSHTTPRequest(ctx context.Context, req TTSRequest) (*http.Request, error) {
	body, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/msgpack")
	httpReq.Header.Set("model", c.model)
	return httpReq, nil
}

// Synthesize converts text to speech and returns the complete audio data
// in the request's format.
func (c *Client) Synthesize(ctx context.Context, req TTSRequest) ([]byte, error) {
	httpReq, err := c.newTTSHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	return io.ReadAll(resp.Body)
}

// SynthesizeStream converts text to speech and streams audio chunks as they
// arrive from the API. The channel is closed when the stream ends.
func (c *Client) SynthesizeStream(ctx context.Context, req TTSRequest) (<-chan []byte, error) {
	httpReq, err := c.newTTSHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := apiError(resp)
		resp.Body.Close()
		return nil, err
	}

	ch := make(chan []byte, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return ch, nil
}
