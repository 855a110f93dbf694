package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint pairs an HTTP route with the CLI command that calls it, so
// `insight api ...` and the server never drift apart.
type Endpoint interface {
	// Route returns the method, ServeMux pattern and handler.
	Route() (method, pattern string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the database, settings
	// and agent runtime. Such routes answer 503 until the server is ready.
	RequiresInit() bool

	// Command builds the client-side command. getServerURL is evaluated
	// when the command runs, after --server has been parsed.
	Command(getServerURL func() string) *cobra.Command
}
