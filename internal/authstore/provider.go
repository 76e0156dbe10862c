package authstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider supplies a list of authorized UUIDs. Adding a new source means
// adding a type that implements this interface, not extending a switch.
type Provider interface {
	Name() string
	Priority() int
	Fetch(ctx context.Context) ([]string, error)
	Available() bool
}

// Static is a constant, always-available list of UUIDs, priority 0.
type Static struct {
	UUIDs []string
}

func (s *Static) Name() string     { return "static" }
func (s *Static) Priority() int    { return 0 }
func (s *Static) Available() bool  { return len(s.UUIDs) > 0 }
func (s *Static) Fetch(_ context.Context) ([]string, error) {
	return s.UUIDs, nil
}

// Remote talks to a panel-style API (e.g. Remnawave) that returns users in
// one of several response shapes.
type Remote struct {
	APIURL   string
	APIKey   string
	priority int
	client   *http.Client
}

// NewRemote constructs a Remote provider with a 10s request timeout.
func NewRemote(apiURL, apiKey string) *Remote {
	return &Remote{
		APIURL:   apiURL,
		APIKey:   apiKey,
		priority: 1,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Remote) Name() string    { return "remote" }
func (r *Remote) Priority() int   { return r.priority }
func (r *Remote) Available() bool { return r.APIURL != "" }

type remoteUser struct {
	VlessUUID string `json:"vlessUuid"`
	Enabled   *bool  `json:"enabled"`
	Status    string `json:"status"`
}

type remoteEnvelope struct {
	Response *struct {
		Users []remoteUser `json:"users"`
	} `json:"response"`
	Users []remoteUser  `json:"users"`
	Data  []remoteUser  `json:"data"`
}

func (r *Remote) Fetch(ctx context.Context) ([]string, error) {
	url := strings.TrimRight(r.APIURL, "/") + "/api/users"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote provider request: %w", err)
	}
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote provider fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote provider read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote provider status %d: %w", resp.StatusCode, ErrInvalidResponse)
	}

	users, err := parseRemoteUsers(body)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, u := range users {
		if !isAcceptedRemoteUser(u) {
			continue
		}
		id, err := uuid.Parse(u.VlessUUID)
		if err != nil {
			continue
		}
		out = append(out, id.String())
	}
	return out, nil
}

func isAcceptedRemoteUser(u remoteUser) bool {
	if u.Enabled != nil && !*u.Enabled {
		return false
	}
	if u.Status != "" && strings.EqualFold(u.Status, "disabled") {
		return false
	}
	return true
}

func parseRemoteUsers(body []byte) ([]remoteUser, error) {
	var env remoteEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case env.Response != nil:
			return env.Response.Users, nil
		case env.Users != nil:
			return env.Users, nil
		case env.Data != nil:
			return env.Data, nil
		}
	}

	var bare []remoteUser
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	return nil, fmt.Errorf("remote provider body did not match any known shape: %w", ErrInvalidResponse)
}

// GenericHTTP is a looser provider for endpoints returning either a bare
// array of UUID strings or {"uuids": [...]}.
type GenericHTTP struct {
	URL      string
	priority int
	client   *http.Client
}

// NewGenericHTTP constructs a GenericHTTP provider with a 10s timeout.
func NewGenericHTTP(url string) *GenericHTTP {
	return &GenericHTTP{
		URL:      url,
		priority: 2,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *GenericHTTP) Name() string    { return "generic-http" }
func (g *GenericHTTP) Priority() int   { return g.priority }
func (g *GenericHTTP) Available() bool { return g.URL != "" }

type genericEnvelope struct {
	UUIDs []string `json:"uuids"`
}

func (g *GenericHTTP) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("generic-http provider request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generic-http provider fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("generic-http provider read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generic-http provider status %d: %w", resp.StatusCode, ErrInvalidResponse)
	}

	var bare []string
	if err := json.Unmarshal(body, &bare); err == nil {
		return normalizeAll(bare), nil
	}

	var env genericEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		return normalizeAll(env.UUIDs), nil
	}

	return nil, fmt.Errorf("generic-http provider body did not match any known shape: %w", ErrInvalidResponse)
}

func normalizeAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id.String())
	}
	return out
}
