package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hunter-volkman/image-emailer/internal/auth"
)

// Client talks to the daemon's command API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func New(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type Status struct {
	LastCaptureTime string `json:"last_capture_time"`
	LastSentDate    string `json:"last_sent_date"`
}

func (c *Client) Status() (*Status, error) {
	var status Status
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

type commandResponse struct {
	Status string `json:"status"`
	Date   string `json:"date"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// SendReport asks the daemon to re-send the report for a YYYYMMDD date.
func (c *Client) SendReport(date string) error {
	var resp commandResponse
	return c.do(http.MethodPost, "/api/v1/report/send", map[string]string{"date": date}, &resp)
}

// BuildArtifact asks the daemon to build the animated artifact for a
// YYYYMMDD date and returns the resulting path.
func (c *Client) BuildArtifact(date string) (string, error) {
	var resp commandResponse
	if err := c.do(http.MethodPost, "/api/v1/artifact/build", map[string]string{"date": date}, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := auth.GenerateToken(c.secret)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
