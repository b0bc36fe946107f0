package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// Commands of endpoints under /api/{group}/ are nested under a {group}
// command; other endpoints sit directly under "api".
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running problembook server via HTTP.

These commands require a running server (problembook serve).
Use --server to specify a custom server URL.

Examples:
  problembook api health                      # Check server health
  problembook api batches ocr --book alg --start 1 --end 40
  problembook api batches watch <batch-id>    # Stream batch progress
  problembook api jobs get <id>               # Get a specific job`,
	}

	groups := make(map[string]*cobra.Command)
	for _, ep := range r.endpoints {
		_, path, _ := ep.Route()
		cmd := ep.Command(getServerURL)
		group := Group(path)
		if group == "" {
			apiCmd.AddCommand(cmd)
			continue
		}
		parent, ok := groups[group]
		if !ok {
			parent = &cobra.Command{Use: group, Short: "Operations on " + group}
			groups[group] = parent
		}
		parent.AddCommand(cmd)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		apiCmd.AddCommand(groups[name])
	}
	return apiCmd
}

// Group returns the CLI group of an endpoint path: the segment after
// /api/, skipping the "ws" transport prefix.
func Group(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if parts[0] == "ws" && len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
