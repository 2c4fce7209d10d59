package api

import (
	"github.com/ant0ine/go-json-rest/rest"

	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/pkg/auth"
	"github.com/amalgam8/vigil/registry"
)

// Config encapsulates REST server configuration parameters
type Config struct {

	// HTTPAddressSpec is the listen address of the server, e.g. ":8080".
	HTTPAddressSpec string

	// Registries hands out the namespace-scoped service registries.
	Registries *registry.Manager

	// Policies manages the autoscaling policies.
	Policies autoscale.Manager

	// Metrics ingests raw metric samples.
	Metrics autoscale.MetricRecorder

	// Authenticator resolves request credentials to a namespace.
	// Defaults to the global namespace authenticator.
	Authenticator auth.Authenticator

	// Middlewares are extension middlewares, installed between the trace
	// and the metrics middlewares.
	Middlewares []rest.Middleware
}
