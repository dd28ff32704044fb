package hostmod

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

// HTTP exposes a promise-based http client.
type HTTP struct {
	cfg Config
}

// Name implements module.HostModule.
func (*HTTP) Name() string { return NameHTTP }

type request struct {
	headers map[string]string
	method  string
	url     string
	body    string
}

// Load implements module.HostModule.
func (h *HTTP) Load(c *engine.Context, exports *goja.Object) error {
	if err := exports.Set("get", func(call goja.FunctionCall) goja.Value {
		return h.do(c, request{method: http.MethodGet, url: call.Argument(0).String()})
	}); err != nil {
		return err
	}
	return exports.Set("request", func(call goja.FunctionCall) goja.Value {
		req, err := parseRequest(call.Argument(0))
		if err != nil {
			c.Throw(err)
		}
		return h.do(c, req)
	})
}

func parseRequest(v goja.Value) (request, error) {
	opts, ok := v.Export().(map[string]any)
	if !ok {
		return request{}, errors.InvalidInput(errors.PhaseEngine, "http.request expects an options object")
	}

	req := request{method: http.MethodGet, headers: map[string]string{}}
	if s, ok := opts["url"].(string); ok {
		req.url = s
	}
	if req.url == "" {
		return request{}, errors.InvalidInput(errors.PhaseEngine, "http.request: url is required")
	}
	if s, ok := opts["method"].(string); ok && s != "" {
		req.method = strings.ToUpper(s)
	}
	if s, ok := opts["body"].(string); ok {
		req.body = s
	}
	if hs, ok := opts["headers"].(map[string]any); ok {
		for k, v := range hs {
			if s, ok := v.(string); ok {
				req.headers[k] = s
			}
		}
	}
	return req, nil
}

func (h *HTTP) do(c *engine.Context, r request) goja.Value {
	client := h.cfg.Client
	return c.Async(func(ctx context.Context) (any, error) {
		var body io.Reader
		if r.body != "" {
			body = strings.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return nil, err
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		headers := make(map[string]any, len(resp.Header))
		for k, v := range resp.Header {
			headers[strings.ToLower(k)] = strings.Join(v, ", ")
		}
		return map[string]any{
			"status":     resp.StatusCode,
			"statusText": resp.Status,
			"ok":         resp.StatusCode >= 200 && resp.StatusCode < 300,
			"headers":    headers,
			"text":       string(data),
		}, nil
	})
}
