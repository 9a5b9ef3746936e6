package eds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/enersight/services/telemetry/config"
)

func TestPollReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<recordGroup></recordGroup>`))
	}))
	defer server.Close()

	client := NewClient(config.ControllerConfig{PollTimeout: time.Second})
	body, err := client.Poll(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, []byte(`<recordGroup></recordGroup>`), body)
}

func TestPollRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(config.ControllerConfig{PollTimeout: time.Second})
	_, err := client.Poll(context.Background(), server.URL)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusServiceUnavailable, remoteErr.Status)
}

func TestPollTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(config.ControllerConfig{PollTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Poll(context.Background(), server.URL)
	require.ErrorIs(t, err, ErrPollTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestPollNetworkError(t *testing.T) {
	// a closed server refuses the connection outright
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(config.ControllerConfig{PollTimeout: time.Second})
	_, err := client.Poll(context.Background(), url)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.NotNil(t, errors.Unwrap(netErr))
	require.NotErrorIs(t, err, ErrPollTimeout)
}
