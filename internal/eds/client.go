package eds

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"example.com/enersight/services/telemetry/config"
)

// ErrPollTimeout reports that the wall-clock budget elapsed before the
// controller produced a response. The in-flight request is canceled, not
// abandoned.
var ErrPollTimeout = errors.New("eds: poll timed out")

// RemoteError reports a completed response with a non-2xx status
type RemoteError struct {
	Status int
}

func (e *RemoteError) Error() string {
	return "eds: controller returned status " + http.StatusText(e.Status)
}

// NetworkError reports a transport-level failure before any response
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return "eds: controller unreachable: " + e.Cause.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Client polls remote meter controllers with a hard per-request timeout
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a controller client from configuration
func NewClient(cfg config.ControllerConfig) *Client {
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
	}
}

// Poll issues exactly one GET against the controller and returns the body
// on a 2xx response. Exactly one of four outcomes is reported: the body,
// ErrPollTimeout, a *RemoteError, or a *NetworkError.
func (c *Client) Poll(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "eds: invalid controller URL")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrPollTimeout
		}
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrPollTimeout
		}
		return nil, &NetworkError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Status: resp.StatusCode}
	}

	return body, nil
}
