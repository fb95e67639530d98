package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Camera acquires a single raw image from the external device.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// HTTPCamera fetches snapshots from a camera's still-image endpoint. The
// client timeout bounds every acquisition so a hung device cannot starve
// the scheduler.
type HTTPCamera struct {
	url    string
	client *http.Client
}

func NewHTTPCamera(url string, timeout time.Duration) *HTTPCamera {
	return &HTTPCamera{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPCamera) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("camera returned an empty snapshot")
	}
	return data, nil
}
