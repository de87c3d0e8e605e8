package apiclient

import (
	"net/url"

	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/planner"
)

// PluginList is the body of GET /v1/plugins.
type PluginList struct {
	Plugins []*plugin.Descriptor `json:"plugins"`
	Count   int                  `json:"count"`
}

// ReloadResult is the body of POST /v1/plugins/reload.
type ReloadResult struct {
	Reloaded bool `json:"reloaded"`
	Plugins  int  `json:"plugins"`
}

// InvalidateResult is the body of POST /v1/plan/invalidate.
type InvalidateResult struct {
	Invalidated bool `json:"invalidated"`
}

// ListPlugins fetches the discovered plugin descriptors. An empty kind
// returns everything; "utility" or "service" filters by kind.
func (c *Client) ListPlugins(kind string) (*PluginList, error) {
	path := "/v1/plugins"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}

	var list PluginList
	if err := c.get(path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetPlugin fetches one plugin descriptor by name.
func (c *Client) GetPlugin(name string) (*plugin.Descriptor, error) {
	var desc plugin.Descriptor
	if err := c.get("/v1/plugins/"+url.PathEscape(name), &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// GetPlan fetches the current startup plan, computing it server-side when
// no memoized plan exists.
func (c *Client) GetPlan() (*planner.Plan, error) {
	var plan planner.Plan
	if err := c.get("/v1/plan", &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// InvalidatePlan discards the server's memoized startup plan. Requires an
// admin token.
func (c *Client) InvalidatePlan() (*InvalidateResult, error) {
	var res InvalidateResult
	if err := c.post("/v1/plan/invalidate", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reload rescans the server's plugin tree and invalidates the startup
// plan. Requires an admin token.
func (c *Client) Reload() (*ReloadResult, error) {
	var res ReloadResult
	if err := c.post("/v1/plugins/reload", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
