// Package servertap is the REST adapter for the ServerTap plugin API.
package servertap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/frederikbeimgraben/mcssh/internal/protocol"
)

// Client talks to the ServerTap REST API.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	mu          sync.Mutex
	players     []protocol.Player
	lastUpdated time.Time
	lastErr     error
	// refreshing is closed when the in-flight player fetch ends.
	refreshing chan struct{}
}

// NewClient creates a new ServerTap client. Player lists are cached for ttl.
func NewClient(baseURL, secret string, ttl time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		ttl:        ttl,
		now:        time.Now,
	}
}

// fresh reports whether the cached player list is within the TTL.
// c.mu must be held.
func (c *Client) fresh() bool {
	return !c.lastUpdated.IsZero() && c.now().Sub(c.lastUpdated) < c.ttl
}

// startRefresh starts a player fetch unless one is running and returns
// the channel closed when it ends. c.mu must be held.
func (c *Client) startRefresh() <-chan struct{} {
	if c.refreshing != nil {
		return c.refreshing
	}
	done := make(chan struct{})
	c.refreshing = done
	go c.refresh(done)
	return done
}

func (c *Client) refresh(done chan struct{}) {
	players, err := c.fetchPlayers(context.Background())
	if err != nil {
		log.Printf("[servertap] Error getting online players: %v", err)
	}

	c.mu.Lock()
	// A failing server is retried after the TTL, not on every keystroke.
	c.lastUpdated = c.now()
	c.lastErr = err
	if err == nil {
		c.players = players
	}
	c.refreshing = nil
	c.mu.Unlock()
	close(done)
}

// OnlinePlayers returns the online players, served from cache within the
// TTL. Concurrent callers share one request.
func (c *Client) OnlinePlayers(ctx context.Context) ([]protocol.Player, error) {
	c.mu.Lock()
	if c.fresh() {
		players, err := c.players, c.lastErr
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return players, nil
	}
	done := c.startRefresh()
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr != nil {
		return nil, c.lastErr
	}
	return c.players, nil
}

// Players returns display names of online players without waiting on the
// network. A stale cache is returned as is and refreshed in the background.
func (c *Client) Players(ctx context.Context) []string {
	c.mu.Lock()
	if !c.fresh() {
		c.startRefresh()
	}
	players := c.players
	c.mu.Unlock()

	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.DisplayName)
	}
	return names
}

func (c *Client) fetchPlayers(ctx context.Context) ([]protocol.Player, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+protocol.PathPlayers, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(protocol.HeaderKey, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get players: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get players returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var players []protocol.Player
	if err := json.NewDecoder(resp.Body).Decode(&players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	return players, nil
}

// Exec runs a console command through the REST API.
func (c *Client) Exec(ctx context.Context, command string) error {
	form := url.Values{"command": {command}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+protocol.PathExec, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(protocol.HeaderKey, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to exec command: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exec returned %d", resp.StatusCode)
	}
	return nil
}
