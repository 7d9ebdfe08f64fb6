package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
)

// Client is the agent- and CLI-side view of the tracker API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for a tracker at addr ("host:port").
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tracker returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tracker returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register registers a node agent with the tracker.
func (c *Client) Register(req *types.RegisterRequest) (*types.RegisterResponse, error) {
	var resp types.RegisterResponse
	if err := c.post("/v1/tracker/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat sends one heartbeat.
func (c *Client) Heartbeat(req *types.HeartbeatRequest) (*types.HeartbeatResponse, error) {
	var resp types.HeartbeatResponse
	if err := c.post("/v1/tracker/heartbeat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unregister announces clean agent shutdown.
func (c *Client) Unregister(id types.NodeID) error {
	return c.post("/v1/tracker/unregister", &types.UnregisterRequest{NodeID: id}, nil)
}

// ListNodes returns the registry snapshot.
func (c *Client) ListNodes() ([]types.NodeSummary, error) {
	var nodes []types.NodeSummary
	if err := c.get("/v1/nodes", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// DecommissionNode marks a node as draining.
func (c *Client) DecommissionNode(id types.NodeID) error {
	return c.post("/v1/nodes/"+id.String()+"/decommission", struct{}{}, nil)
}

// UpdateDynamicResources replaces the dynamic resource table.
func (c *Client) UpdateDynamicResources(entries []types.DynamicResourceEntry) error {
	return c.post("/v1/admin/resources", entries, nil)
}

// UpdateAdmission replaces the admission configuration.
func (c *Client) UpdateAdmission(adm config.AdmissionConfig) error {
	return c.post("/v1/admin/admission", adm, nil)
}

// UpdatePacing replaces the heartbeat pacing configuration.
func (c *Client) UpdatePacing(p config.PacingConfig) error {
	return c.post("/v1/admin/pacing", p, nil)
}

// RollKey stages the next master key of the given kind.
func (c *Client) RollKey(kind string) (int64, error) {
	var resp map[string]int64
	if err := c.post("/v1/admin/keys/"+kind+"/roll", struct{}{}, &resp); err != nil {
		return 0, err
	}
	return resp["key_id"], nil
}

// ActivateKey promotes the staged master key of the given kind.
func (c *Client) ActivateKey(kind string) error {
	return c.post("/v1/admin/keys/"+kind+"/activate", struct{}{}, nil)
}

// UpdateCredentials replaces the per-app system credentials.
func (c *Client) UpdateCredentials(byApp map[string][]byte) (int64, error) {
	var resp map[string]int64
	if err := c.post("/v1/admin/credentials", byApp, &resp); err != nil {
		return 0, err
	}
	return resp["token_sequence_no"], nil
}
