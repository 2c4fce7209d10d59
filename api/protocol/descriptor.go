package protocol

import (
	"github.com/ant0ine/go-json-rest/rest"

	"github.com/amalgam8/vigil/api/env"
)

// APIDescriptor binds a single API operation to its route.
type APIDescriptor struct {

	// Path of the route, in rest.Route placeholder syntax.
	Path string

	// Method is the HTTP method, one of the http.MethodXXX constants.
	Method string

	// Operation implemented by the route (e.g., RegisterInstance).
	Operation Operation

	// Handler serving the operation.
	Handler rest.HandlerFunc
}

// AsRoute converts the descriptor into a rest.Route. The handler is
// wrapped with the given middlewares, and the operation is stamped into
// the request context (env.APIOperation) before any of them run, so
// downstream middleware can attribute the request.
func (desc *APIDescriptor) AsRoute(middlewares ...rest.Middleware) *rest.Route {
	handler := rest.WrapMiddlewares(middlewares, desc.Handler)
	operation := desc.Operation

	return &rest.Route{
		HttpMethod: desc.Method,
		PathExp:    desc.Path,
		Func: func(w rest.ResponseWriter, r *rest.Request) {
			r.Env[env.APIOperation] = operation
			handler(w, r)
		},
	}
}
