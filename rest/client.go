// Package rest is a client for the one-shot HTTP side of the realtime API:
// channel listing, history and publishing. It shares nothing with the
// websocket client in package realtime.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Channel describes one channel.
type Channel struct {
	Channel string `json:"channel"`
}

// Subscriptions lists the sockets subscribed to a channel.
type Subscriptions struct {
	Devices []string `json:"devices"`
}

// Message is a channel message as the REST API returns it. Data is JSON.
type Message struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// NewMessage marshals data into a Message.
func NewMessage(name string, data any) (Message, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Name: name, Data: encoded}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("realtime rest: status %d: %s", err.StatusCode, err.Body)
}

// ErrNotFound matches a 404 StatusError with errors.Is.
var ErrNotFound = errors.New("realtime rest: not found")

func (err *StatusError) Is(target error) bool {
	return target == ErrNotFound && err.StatusCode == http.StatusNotFound
}

// Client calls the REST endpoints of one project.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(client *Client) {
		client.userAgent = userAgent
	}
}

// New returns a client for {baseURL}/v1/projects/{project}/realtime.
func New(baseURL string, project string, options ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, err
	}
	switch parsed.Scheme {
	case "http", "https":
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return nil, fmt.Errorf("realtime rest: unsupported scheme %q", parsed.Scheme)
	}
	if project == "" {
		return nil, errors.New("realtime rest: empty project")
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	parsed.RawQuery = ""

	client := &Client{
		baseURL:    parsed.JoinPath("v1", "projects", project, "realtime").String(),
		httpClient: http.DefaultClient,
		userAgent:  "realtime-client-go",
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Channels lists the channels of the project.
func (client *Client) Channels(ctx context.Context) ([]Channel, error) {
	var response struct {
		Channels []Channel `json:"channels"`
	}
	if err := client.getJSON(ctx, "/channels", nil, &response); err != nil {
		return nil, err
	}
	return response.Channels, nil
}

// Channel describes one channel.
func (client *Client) Channel(ctx context.Context, name string) (Channel, error) {
	var response Channel
	err := client.getJSON(ctx, "/channels/"+url.PathEscape(name), nil, &response)
	return response, err
}

// ChannelMessages reads the channel history after position start ("0" for
// everything). The server streams one result object per message.
func (client *Client) ChannelMessages(ctx context.Context, name string, start string) ([]Message, error) {
	if start == "" {
		start = "0"
	}
	response, err := client.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(name)+"/messages", url.Values{"start": {start}}, nil)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	messages := make([]Message, 0)
	decoder := json.NewDecoder(response.Body)
	for {
		var result struct {
			Result struct {
				Message Message `json:"message"`
			} `json:"result"`
		}
		if err := decoder.Decode(&result); err != nil {
			if errors.Is(err, io.EOF) {
				return messages, nil
			}
			return messages, fmt.Errorf("realtime rest: decode history: %w", err)
		}
		messages = append(messages, result.Result.Message)
	}
}

// ChannelSubscriptions lists the sockets subscribed to the channel.
func (client *Client) ChannelSubscriptions(ctx context.Context, name string) (Subscriptions, error) {
	var response Subscriptions
	err := client.getJSON(ctx, "/channels/"+url.PathEscape(name)+"/subscriptions", nil, &response)
	return response, err
}

// ChannelPublish publishes messages and returns their ids.
func (client *Client) ChannelPublish(ctx context.Context, name string, messages []Message) ([]string, error) {
	body, err := json.Marshal(struct {
		Messages []Message `json:"messages"`
	}{Messages: messages})
	if err != nil {
		return nil, err
	}

	response, err := client.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(name)+"/messages", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	var result struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("realtime rest: decode publish response: %w", err)
	}
	return result.IDs, nil
}

func (client *Client) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	response, err := client.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("realtime rest: decode %s: %w", path, err)
	}
	return nil
}

func (client *Client) do(ctx context.Context, method string, path string, query url.Values, body io.Reader) (*http.Response, error) {
	target := client.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if client.userAgent != "" {
		request.Header.Set("User-Agent", client.userAgent)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, &StatusError{StatusCode: response.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return response, nil
}
