// Package admin — узкий клиент внешнего административного сервиса.
// Вся CRUD-логика турниров живёт там; ядру нужен только шаг создания
// турнира внутри саги списания взноса.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateTournament создаёт запись турнира в админке и возвращает её id.
func (c *Client) CreateTournament(ctx context.Context, organizerID int, name string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"organizer_id": organizerID,
		"name":         name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal tournament payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/tournaments", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build tournament request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tournament creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tournament creation returned status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode tournament response: %w", err)
	}
	return out.ID, nil
}
