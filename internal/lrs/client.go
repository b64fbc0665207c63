// Package lrs is a read-only client for the statements, agent-profile and
// activity-profile resources of a Learning Record Store.
package lrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/lrsweek/internal/xapi"
)

const (
	statementsPath       = "/trax/ws/xapi/statements"
	agentProfilePath     = "/trax/ws/xapi/agents/profile"
	activityProfilePath  = "/trax/ws/xapi/activities/profile"
	defaultTimeout       = 60 * time.Second
	DefaultVersionHeader = "X-Experience-API-Version"
	DefaultVersion       = "1.0.3"
)

var activitySuffix = regexp.MustCompile(`_([0-9]+)$`)

// ClientConfig contains configuration for the LRS client.
type ClientConfig struct {
	// BaseURL is the LRS host, with or without scheme.
	BaseURL string

	// Port is appended to BaseURL. Zero leaves BaseURL untouched.
	Port int

	User     string
	Password string

	// Headers are sent on every request.
	Headers map[string]string

	// Params are added to every request's query string.
	Params map[string]string

	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultClientConfig returns the Trax LRS defaults.
func DefaultClientConfig(baseURL string, port int) ClientConfig {
	return ClientConfig{
		BaseURL:  baseURL,
		Port:     port,
		User:     "testsuite",
		Password: "password",
		Headers:  map[string]string{DefaultVersionHeader: DefaultVersion},
		Timeout:  defaultTimeout,
	}
}

// TransportError is a failed or empty LRS response. There are no retries.
type TransportError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %q: %v", e.URL, e.Err)
	}
	if e.Status != http.StatusOK {
		return fmt.Sprintf("request %q response: %d. reason: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("request %q: no json data. reason: %s", e.URL, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client issues GET requests against one LRS.
type Client struct {
	config     ClientConfig
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient normalizes the base URL: http:// is prepended when no scheme
// is present and the port is appended.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	base, err := BaseURL(config.BaseURL, config.Port)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:     config,
		base:       base,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger.With("component", "lrs"),
	}, nil
}

// BaseURL builds the LRS root URL from a host and port.
func BaseURL(raw string, port int) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return nil, fmt.Errorf("lrs url is empty")
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	if port > 0 {
		raw = raw + ":" + strconv.Itoa(port)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse lrs url %q: %w", raw, err)
	}
	return u, nil
}

// Base returns the normalized LRS root URL.
func (c *Client) Base() string {
	return c.base.String()
}

// Statements starts a paginated statements query. No request is made until
// the first call to Next.
func (c *Client) Statements() *StatementPager {
	return &StatementPager{client: c}
}

// AgentProfile fetches the profile document of an agent. The profile id is
// the digits of the agent's mailto: mbox.
func (c *Client) AgentProfile(ctx context.Context, agent json.RawMessage) ([]byte, error) {
	var actor xapi.Actor
	if err := json.Unmarshal(agent, &actor); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	profileID, ok := xapi.StudentID(actor.Mbox)
	if !ok {
		return nil, &xapi.MalformedStatementError{
			Field:   "actor.mbox",
			Message: fmt.Sprintf("no student id in %q", actor.Mbox),
		}
	}

	q := url.Values{}
	q.Set("agent", string(agent))
	q.Set("profileId", profileID)
	return c.get(ctx, c.resolve(agentProfilePath, q))
}

// ActivityProfile fetches the profile document of a course activity. The
// profile id is the trailing _<digits> of the activity id.
func (c *Client) ActivityProfile(ctx context.Context, activityID string) ([]byte, error) {
	profileID, ok := ActivityProfileID(activityID)
	if !ok {
		return nil, fmt.Errorf("activity id %q has no _<number> suffix", activityID)
	}

	q := url.Values{}
	q.Set("activityId", activityID)
	q.Set("profileId", profileID)
	return c.get(ctx, c.resolve(activityProfilePath, q))
}

// ActivityProfileID extracts the trailing digits of an activity id.
func ActivityProfileID(activityID string) (string, bool) {
	m := activitySuffix.FindStringSubmatch(activityID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// resolve joins a path onto the base URL and merges in q and the configured params.
func (c *Client) resolve(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q == nil {
		q = url.Values{}
	}
	for k, v := range c.config.Params {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// continuation resolves a "more" link against the base URL, keeping its own
// query and adding configured params it lacks.
func (c *Client) continuation(more string) (string, error) {
	ref, err := url.Parse(more)
	if err != nil {
		return "", fmt.Errorf("parse more link %q: %w", more, err)
	}
	u := c.base.ResolveReference(ref)
	q := u.Query()
	for k, v := range c.config.Params {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	req.SetBasicAuth(c.config.User, c.config.Password)

	c.logger.Debug("lrs request", "url", fullURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: fullURL, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: fullURL, Status: resp.StatusCode, Body: string(body)}
	}
	if isEmptyJSON(body) {
		return nil, &TransportError{URL: fullURL, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// isEmptyJSON reports a body that carries no data: blank, null, {} or [].
func isEmptyJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return false
	}
	switch compact.String() {
	case "null", "{}", "[]":
		return true
	}
	return false
}
