package rendezvous

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Status is a room's visible state: the stored offer and, once a guest has
// joined, the answer.
type Status struct {
	Offer     string
	HasAnswer bool
	Answer    string
}

// Client talks to a relay over HTTP. Errors map 1:1 onto the store's
// sentinels so callers branch on errors.Is rather than status codes.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateRoom(ctx context.Context, offer string) (string, error) {
	var resp createResponse
	err := c.do(ctx, http.MethodPost, "/rooms", createRequest{Offer: offer}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Code, nil
}

func (c *Client) RoomStatus(ctx context.Context, code string) (Status, error) {
	var resp statusResponse
	err := c.do(ctx, http.MethodGet, "/rooms/"+code, nil, &resp)
	if err != nil {
		return Status{}, err
	}
	return Status{Offer: resp.Offer, HasAnswer: resp.HasAnswer, Answer: resp.Answer}, nil
}

// SubmitAnswer stores the guest's answer and returns the host's offer.
func (c *Client) SubmitAnswer(ctx context.Context, code, answer string) (string, error) {
	var resp statusResponse
	err := c.do(ctx, http.MethodPost, "/rooms/"+code+"/answer", answerRequest{Answer: answer}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Offer, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rendezvous request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrClaimed
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("rendezvous: %s (status %d)", e.Error, resp.StatusCode)
	}
}
