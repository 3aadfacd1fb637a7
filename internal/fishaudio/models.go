package fishaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// Model is a voice model owned by or visible to the account.
type Model struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       string    `json:"state"` // "created", "training", "trained", "failed"
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"created_at"`
}

// ModelList is one page of voice models.
type ModelList struct {
	Total int     `json:"total"`
	Items []Model `json:"items"`
}

// ListModelsParams filters and paginates model listing.
type ListModelsParams struct {
	PageSize   int
	PageNumber int
	Self       bool // Only models owned by this account
}

// ListModels returns a page of voice models.
func (c *Client) ListModels(ctx context.Context, p ListModelsParams) (*ModelList, error) {
	if p.PageSize <= 0 {
		p.PageSize = 10
	}
	if p.PageNumber <= 0 {
		p.PageNumber = 1
	}

	url := fmt.Sprintf("%s/model?page_size=%d&page_number=%d&self=%t",
		c.baseURL, p.PageSize, p.PageNumber, p.Self)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
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

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &list, nil
}

// GetModel returns details of a single voice model.
func (c *Client) GetModel(ctx context.Context, modelID string) (*Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/model/"+modelID, nil)
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

	var model Model
	if err := json.NewDecoder(resp.Body).Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &model, nil
}

// DeleteModel deletes a voice model.
func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/model/"+modelID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// CreateModelParams describes a new voice model. Voices holds one or more
// audio samples; Texts optionally carries a transcript per sample.
type CreateModelParams struct {
	Title               string
	Description         string
	Voices              [][]byte
	Texts               []string
	CoverImage          []byte
	Visibility          string // defaults to "private"
	TrainMode           string // "fast" or "full", defaults to "fast"
	EnhanceAudioQuality bool
}

// CreateModel creates a voice model from audio samples via multipart upload.
func (c *Client) CreateModel(ctx context.Context, p CreateModelParams) (*Model, error) {
	if len(p.Voices) == 0 {
		return nil, fmt.Errorf("at least one voice sample is required")
	}
	if p.Visibility == "" {
		p.Visibility = "private"
	}
	if p.TrainMode == "" {
		p.TrainMode = "fast"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := [][2]string{
		{"visibility", p.Visibility},
		{"type", "tts"},
		{"title", p.Title},
		{"description", p.Description},
		{"train_mode", p.TrainMode},
		{"enhance_audio_quality", strconv.FormatBool(p.EnhanceAudioQuality)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	for _, text := range p.Texts {
		if err := w.WriteField("texts", text); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	for i, voice := range p.Voices {
		fw, err := w.CreateFormFile("voices", fmt.Sprintf("voice%d", i+1))
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(voice); err != nil {
			return nil, fmt.Errorf("failed to write voice sample: %w", err)
		}
	}

	if len(p.CoverImage) > 0 {
		fw, err := w.CreateFormFile("cover_image", "cover")
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(p.CoverImage); err != nil {
			return nil, fmt.Errorf("failed to write cover image: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/model", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp)
	}

	var model Model
	if err := json.NewDecoder(resp.Body).Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &model, nil
}
