package auth

// Namespace identifies an isolated tenancy scope. All state access is
// partitioned by it.
type Namespace string

// GlobalNamespace is the namespace all unauthenticated requests resolve
// to. Background components that serve a single tenant bind to it.
var GlobalNamespace = Namespace("global")
