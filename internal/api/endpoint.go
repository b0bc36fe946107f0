package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs an HTTP route with the CLI command that calls it, so the
// server and the `problembook api` tree cannot drift apart.
type Endpoint interface {
	// Route returns the method, the ServeMux pattern and the handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the services built by
	// Server.Start; such routes answer 503 until then.
	RequiresInit() bool

	// Command builds the CLI command. getServerURL is read when the
	// command runs, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}
