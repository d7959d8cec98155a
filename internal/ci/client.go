// Package ci implements the CI Trigger Client: a thin outbound call to the
// CI system's workflow-dispatch endpoint, consumed by the Release Engine
// through the release.CITrigger interface.
package ci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gommgo/release-machine/internal/httpclient"
	"github.com/gommgo/release-machine/internal/release"
)

// Config configures a Client. Owner/Repo/WorkflowID identify the single
// workflow this control plane dispatches for deployment; Token authenticates
// the call. Ref defaults to "main" when empty.
type Config struct {
	BaseURL    string
	Owner      string
	Repo       string
	WorkflowID string
	Token      string
	Ref        string
}

// Client posts workflow-dispatch requests to the CI system. It depends on
// httpclient.Doer, not a concrete *http.Client, so the resilient client
// (retry + circuit breaker) or a test double can be substituted freely.
type Client struct {
	cfg    Config
	doer   httpclient.Doer
	logger *slog.Logger
}

// New builds a Client. doer is typically an *httpclient.ResilientClient.
func New(cfg Config, doer httpclient.Doer, logger *slog.Logger) *Client {
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, doer: doer, logger: logger}
}

type dispatchBody struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

// Dispatch posts a workflow_dispatch event with the given typed inputs. Any
// non-2xx response is reported as release.CIDispatchError-compatible error
// (the Engine/ApprovalCoordinator wrap it themselves); Dispatch itself
// returns the unwrapped transport/HTTP error.
func (c *Client) Dispatch(ctx context.Context, ref string, inputs map[string]string) error {
	if ref == "" {
		ref = c.cfg.Ref
	}

	body, err := json.Marshal(dispatchBody{Ref: ref, Inputs: inputs})
	if err != nil {
		return fmt.Errorf("ci: marshal dispatch body: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		c.cfg.BaseURL, c.cfg.Owner, c.cfg.Repo, c.cfg.WorkflowID)

	req, err := http.NewRequestWithContext(httpclient.WithOperation(ctx, "ci_dispatch"), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ci: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Error("ci dispatch transport error", "workflow", c.cfg.WorkflowID, "ref", ref, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("ci dispatch rejected", "workflow", c.cfg.WorkflowID, "ref", ref, "status", resp.StatusCode)
		return fmt.Errorf("ci: dispatch returned status %d", resp.StatusCode)
	}

	c.logger.Info("ci dispatch sent", "workflow", c.cfg.WorkflowID, "ref", ref)
	return nil
}

// TriggerDeployment implements release.CITrigger: it dispatches the
// configured deployment workflow with the release's id and tag as inputs,
// grounded on the original's github_client.trigger_workflow call sites in
// ActiveReleaseService.handle_confirm_yes.
func (c *Client) TriggerDeployment(ctx context.Context, r *release.Release) error {
	inputs := map[string]string{
		"release_id":  fmt.Sprintf("%d", r.ID),
		"service":     r.ServiceName,
		"release_tag": r.ReleaseTag,
	}
	if err := c.Dispatch(ctx, c.cfg.Ref, inputs); err != nil {
		return err
	}
	return nil
}
