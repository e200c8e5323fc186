package gateway

import (
	"context"
	"fmt"
	"strings"
)

type route struct {
	prefix string
	client Client
}

// Router picks a backend by model id prefix. Ids that match no prefix go to the
// fallback, normally OpenRouter.
type Router struct {
	routes   []route
	fallback Client
}

func NewRouter(fallback Client) *Router {
	return &Router{fallback: fallback}
}

// Handle registers client for model ids starting with prefix. Longer prefixes win.
func (r *Router) Handle(prefix string, client Client) *Router {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || client == nil {
		return r
	}
	r.routes = append(r.routes, route{prefix: prefix, client: client})
	return r
}

func (r *Router) resolve(model string) (Client, error) {
	id := strings.ToLower(strings.TrimSpace(model))
	var best route
	for _, rt := range r.routes {
		if strings.HasPrefix(id, rt.prefix) && len(rt.prefix) > len(best.prefix) {
			best = rt
		}
	}
	if best.client != nil {
		return best.client, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: no backend for model %q", ErrNotConfigured, model)
	}
	return r.fallback, nil
}

func (r *Router) Call(ctx context.Context, req Request) (Completion, error) {
	client, err := r.resolve(req.Model)
	if err != nil {
		return Completion{}, err
	}
	return client.Call(ctx, req)
}

func (r *Router) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	client, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return client.Stream(ctx, req)
}
