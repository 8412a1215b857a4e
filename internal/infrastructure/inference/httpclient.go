package inference

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

type requestStartedAt struct{}

// NewRestyClient builds the upstream HTTP client. Only connection setup and
// response headers are bounded here; body reads are bounded per increment by
// the stream's idle timeout so long generations are not cut off.
func NewRestyClient(clientName string, connectTimeout time.Duration, log zerolog.Logger) *resty.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	client := resty.New().SetTransport(transport)
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), requestStartedAt{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		startTime, _ := r.Request.Context().Value(requestStartedAt{}).(time.Time)
		event := log.Debug().
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime))
		if raw := r.Request.RawRequest; raw != nil {
			event = event.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		event.Msg("HTTP client request")
		return nil
	})
	return client
}
