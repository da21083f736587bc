package realtime

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/Thejuampi/realtime-client-go/wire"
)

const DefaultHeartbeatTimeout = time.Second

// Config configures a Client. Zero fields take the defaults of DefaultConfig,
// except AutoConnect which is honored as given.
type Config struct {
	// URL is the broker base URL, for example wss://api.example.com.
	URL string
	// Project is the project segment of the realtime endpoint path.
	Project string

	Encoding         wire.Encoding
	HeartbeatTimeout time.Duration

	// MaxRetries and ReconnectDelay configure the default exponential
	// strategy. ReconnectStrategy replaces it entirely when set; use
	// NewFixedDelayStrategy(0, 0) to disable retries.
	MaxRetries        int
	ReconnectDelay    time.Duration
	ReconnectStrategy ReconnectDelayStrategy

	// AutoConnect starts connecting from New.
	AutoConnect bool

	UserAgent string
	// ClientID is sent as the clientId query parameter when set.
	ClientID string

	LogLevel LogLevel
	// Logger overrides the slog logger built from LogLevel.
	Logger Logger

	// SocketFactory defaults to NewWebSocketFactory(nil).
	SocketFactory SocketFactory

	// Registerer receives the client metrics. Nil uses a private registry.
	Registerer       prometheus.Registerer
	MetricsNamespace string

	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		Encoding:         wire.EncodingMsgpack,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		MaxRetries:       DefaultMaxRetries,
		ReconnectDelay:   DefaultReconnectDelay,
		AutoConnect:      true,
		UserAgent:        "realtime-client-go/" + Version,
		LogLevel:         LogLevelError,
	}
}

func (config *Config) applyDefaults() {
	defaults := DefaultConfig()
	if config.HeartbeatTimeout <= 0 {
		config.HeartbeatTimeout = defaults.HeartbeatTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.ReconnectStrategy == nil {
		config.ReconnectStrategy = NewExponentialDelayStrategy(config.ReconnectDelay, config.MaxRetries)
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.LogLevel == 0 {
		config.LogLevel = defaults.LogLevel
	}
	if config.Logger == nil {
		config.Logger = NewLogger(config.LogLevel, nil)
	}
	if config.SocketFactory == nil {
		config.SocketFactory = NewWebSocketFactory(nil)
	}
}

// endpoint returns the realtime endpoint without query parameters.
func (config *Config) endpoint() (*url.URL, error) {
	if strings.TrimSpace(config.URL) == "" {
		return nil, NewError(InvalidURIError, "empty URL")
	}
	endpoint, err := url.Parse(config.URL)
	if err != nil {
		return nil, NewError(InvalidURIError, err)
	}
	switch endpoint.Scheme {
	case "ws", "wss":
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	default:
		return nil, NewError(InvalidURIError, fmt.Sprintf("unsupported scheme %q", endpoint.Scheme))
	}
	if config.Project != "" {
		if endpoint.Path == "" {
			endpoint.Path = "/"
		}
		endpoint = endpoint.JoinPath("v1", "projects", config.Project, "realtime")
	}
	return endpoint, nil
}

// connectURL builds the URL of one connection attempt. sessionID is the
// resumption hint and is omitted when empty.
func (config *Config) connectURL(sessionID string) (string, error) {
	endpoint, err := config.endpoint()
	if err != nil {
		return "", err
	}
	query := endpoint.Query()
	query.Set("user-agent", config.UserAgent)
	query.Set("protocol", ProtocolVersion)
	query.Set("msg-encoding", config.Encoding.String())
	if config.ClientID != "" {
		query.Set("clientId", config.ClientID)
	}
	if sessionID != "" {
		query.Set("sessionId", sessionID)
	}
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}
