// Package delegation implements the transport that hands a task to a remote
// node and reports success or failure. The client never panics or returns a
// Go error for unreachable nodes: every transport outcome is folded into a
// DelegationResult so the conductor can apply its failover policy uniformly.
package delegation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/logging"
)

// DefaultTimeout bounds a delegation attempt when the caller passes none.
const DefaultTimeout = 30 * time.Second

// taskPath is the remote endpoint tasks are posted to, relative to the
// node's address.
const taskPath = "/v1/tasks"

// HTTPClient delegates tasks to remote nodes over JSON/HTTP. It implements
// core.Delegator.
type HTTPClient struct {
	httpClient *http.Client
	logger     logging.Logger
}

// Options configures an HTTPClient.
type Options struct {
	// HTTPClient overrides the default client (no transport-level timeout;
	// per-call timeouts come from the delegation contract).
	HTTPClient *http.Client
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// NewHTTPClient constructs a delegation client.
func NewHTTPClient(optFns ...func(o *Options)) *HTTPClient {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &HTTPClient{httpClient: opts.HTTPClient, logger: opts.Logger}
}

// Delegate posts the task to the node's task endpoint and decodes the
// response. Any timeout, connection error or non-2xx status yields a
// DelegationResult with Success false; the conductor decides whether to fail
// over.
func (c *HTTPClient) Delegate(ctx context.Context, node *core.Node, req core.TaskRequest, timeout time.Duration) core.DelegationResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()

	result := c.post(ctx, node, req, timeout)
	result.LatencyMS = time.Since(start).Milliseconds()

	c.logger.Debug("delegation attempt finished",
		"node_id", node.ID, "success", result.Success, "latency_ms", result.LatencyMS)
	return result
}

func (c *HTTPClient) post(ctx context.Context, node *core.Node, req core.TaskRequest, timeout time.Duration) core.DelegationResult {
	if node.Address == "" {
		return failure("node %s has no address", node.ID)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return failure("marshal task request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, node.Address+taskPath, bytes.NewReader(body))
	if err != nil {
		return failure("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failure("delegate to %s: %v", node.ID, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// Drain a little of the body for a useful error message.
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return failure("node %s returned status %d: %s", node.ID, httpResp.StatusCode, string(msg))
	}

	var resp core.TaskResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return failure("decode response from %s: %v", node.ID, err)
	}

	return core.DelegationResult{Success: true, Response: &resp}
}

func failure(format string, args ...any) core.DelegationResult {
	return core.DelegationResult{Error: fmt.Sprintf(format, args...)}
}
