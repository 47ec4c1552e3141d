// Package directory предоставляет HTTP-клиент справочника клиентов основного приложения.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrRateLimited возвращается, если справочник продолжает отвечать 429 после повторной попытки.
var ErrRateLimited = errors.New("customer directory rate limited")

const maxRetryAfter = 5 * time.Second

// Client инкапсулирует HTTP-взаимодействие со справочником клиентов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для обращения к справочнику клиентов по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// CustomerExists проверяет, зарегистрирован ли клиент: 200 значит есть, 404 значит нет.
// На 429 выполняется одна повторная попытка после паузы из Retry-After.
func (c *Client) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	if c == nil || c.baseURL == "" {
		return false, fmt.Errorf("customer directory client not configured")
	}

	for attempt := 0; attempt < 2; attempt++ {
		status, retryAfter, err := c.lookup(ctx, customerID)
		if err != nil {
			return false, err
		}

		switch status {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			return false, nil
		case http.StatusTooManyRequests:
			if attempt > 0 {
				return false, ErrRateLimited
			}
			if retryAfter > maxRetryAfter {
				retryAfter = maxRetryAfter
			}
			timer := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			case <-timer.C:
			}
		default:
			return false, fmt.Errorf("unexpected status: %d", status)
		}
	}

	return false, ErrRateLimited
}

func (c *Client) lookup(ctx context.Context, customerID string) (int, time.Duration, error) {
	endpoint := fmt.Sprintf("%s/api/customers/%s", c.baseURL, url.PathEscape(customerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	retryAfter := time.Duration(0)
	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
	}

	return resp.StatusCode, retryAfter, nil
}
