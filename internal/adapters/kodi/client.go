// Package kodi talks to a Kodi instance over its JSON-RPC HTTP transport and
// adapts it to the library, playlist, player and queue ports.
package kodi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is a Kodi JSON-RPC client. One client serves all Kodi-backed ports.
type Client struct {
	baseURL    string
	http       *http.Client
	username   string
	password   string
	log        *zap.Logger
	retryDelay time.Duration

	mu           sync.Mutex
	lastPlayerID *int
}

// New creates a Kodi JSON-RPC client.
func New(baseURL string, username string, password string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("base_url required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(parsed.Path, "/jsonrpc") {
		parsed.Path = path.Join(parsed.Path, "/jsonrpc")
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    parsed.String(),
		http:       &http.Client{Timeout: timeout},
		username:   username,
		password:   password,
		log:        log,
		retryDelay: time.Second,
	}, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type activePlayer struct {
	PlayerID int    `json:"playerid"`
	Type     string `json:"type"`
}

type timeObject struct {
	Hours        int `json:"hours"`
	Minutes      int `json:"minutes"`
	Seconds      int `json:"seconds"`
	Milliseconds int `json:"milliseconds"`
}

func (c *Client) rpc(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      int(time.Now().UnixNano()),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kodi error: %s", strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("kodi error: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// activePlayerID prefers a video player and falls back to the last known one
// when Kodi momentarily reports no players (e.g. between playlist items).
func (c *Client) activePlayerID(ctx context.Context) (int, error) {
	raw, err := c.rpc(ctx, "Player.GetActivePlayers", nil)
	if err != nil {
		return 0, err
	}
	var players []activePlayer
	if err := json.Unmarshal(raw, &players); err != nil {
		return 0, err
	}
	if len(players) == 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastPlayerID != nil {
			return *c.lastPlayerID, nil
		}
		return 0, errors.New("no active player")
	}
	playerID := players[0].PlayerID
	for _, p := range players {
		if p.Type == "video" {
			playerID = p.PlayerID
			break
		}
	}
	c.mu.Lock()
	c.lastPlayerID = &playerID
	c.mu.Unlock()
	return playerID, nil
}

func fromTimeObject(obj timeObject) float64 {
	return float64(obj.Hours)*3600 +
		float64(obj.Minutes)*60 +
		float64(obj.Seconds) +
		float64(obj.Milliseconds)/1000
}
