package httpapi

import (
	"net/http"
	"time"

	"github.com/clearway/submitonce"
)

// defaultClientTimeout bounds a single HTTP exchange when the caller does
// not supply its own http.Client.
const defaultClientTimeout = 30 * time.Second

// HandlerConfig defines handler behavior.
type HandlerConfig struct {
	Logger submitonce.Logger
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.Logger == nil {
		c.Logger = submitonce.NopLogger{}
	}

	return c
}

// HandlerOption configures a Handler.
type HandlerOption func(*HandlerConfig)

// WithLogger sets the handler logger.
func WithLogger(logger submitonce.Logger) HandlerOption {
	return func(c *HandlerConfig) {
		c.Logger = logger
	}
}

// ClientConfig defines client behavior.
type ClientConfig struct {
	HTTPClient *http.Client
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultClientTimeout}
	}

	return c
}

// ClientOption configures a Client.
type ClientOption func(*ClientConfig)

// WithHTTPClient replaces the default HTTP client, for example to add a
// proxy, TLS settings, or a different timeout.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = httpc
	}
}
