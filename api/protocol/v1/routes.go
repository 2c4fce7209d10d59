// Copyright 2016 IBM Corporation
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package v1

import (
	"net/http"

	"github.com/ant0ine/go-json-rest/rest"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/api/env"
	"github.com/amalgam8/vigil/api/i18n"
	"github.com/amalgam8/vigil/api/protocol"
	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/pkg/auth"
	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/utils/logging"
)

const (
	module = "V1"
)

// Routes holds the collaborators backing the v1 API handlers.
type Routes struct {
	registries *registry.Manager
	policies   autoscale.Manager
	metrics    autoscale.MetricRecorder
	logger     *log.Entry
}

// New builds the v1 protocol routes around the given collaborators.
func New(registries *registry.Manager, policies autoscale.Manager, metrics autoscale.MetricRecorder) *Routes {
	return &Routes{registries, policies, metrics, logging.GetLogger(module)}
}

// RouteHandlers builds the full v1 route table. Each route is wrapped with
// the given middlewares.
func (routes *Routes) RouteHandlers(middlewares ...rest.Middleware) []*rest.Route {
	descriptors := []*protocol.APIDescriptor{
		{
			Path:      ServicesURL(),
			Method:    "POST",
			Operation: protocol.RegisterService,
			Handler:   routes.registerService,
		},
		{
			Path:      ServicesURL(),
			Method:    "GET",
			Operation: protocol.ListServices,
			Handler:   routes.listServices,
		},
		{
			Path:      serviceTemplateURL(),
			Method:    "GET",
			Operation: protocol.GetService,
			Handler:   routes.getService,
		},
		{
			Path:      serviceTemplateURL(),
			Method:    "PUT",
			Operation: protocol.UpdateService,
			Handler:   routes.updateService,
		},
		{
			Path:      serviceTemplateURL(),
			Method:    "DELETE",
			Operation: protocol.DeregisterService,
			Handler:   routes.deregisterService,
		},
		{
			Path:      serviceInstancesTemplateURL(),
			Method:    "POST",
			Operation: protocol.RegisterInstance,
			Handler:   routes.registerInstance,
		},
		{
			Path:      serviceInstancesTemplateURL(),
			Method:    "GET",
			Operation: protocol.ListServiceInstances,
			Handler:   routes.listServiceInstances,
		},
		{
			Path:      instanceTemplateURL(),
			Method:    "DELETE",
			Operation: protocol.DeregisterInstance,
			Handler:   routes.deregisterInstance,
		},
		{
			Path:      instanceHeartbeatTemplateURL(),
			Method:    "PUT",
			Operation: protocol.RenewInstance,
			Handler:   routes.renewInstance,
		},
		{
			Path:      instanceStatusTemplateURL(),
			Method:    "PUT",
			Operation: protocol.SetInstanceStatus,
			Handler:   routes.setInstanceStatus,
		},
		{
			Path:      PoliciesURL(),
			Method:    "POST",
			Operation: protocol.AddPolicy,
			Handler:   routes.addPolicy,
		},
		{
			Path:      PoliciesURL(),
			Method:    "GET",
			Operation: protocol.ListPolicies,
			Handler:   routes.listPolicies,
		},
		{
			Path:      policyTemplateURL(),
			Method:    "GET",
			Operation: protocol.GetPolicy,
			Handler:   routes.getPolicy,
		},
		{
			Path:      policyTemplateURL(),
			Method:    "PUT",
			Operation: protocol.UpdatePolicy,
			Handler:   routes.updatePolicy,
		},
		{
			Path:      policyTemplateURL(),
			Method:    "DELETE",
			Operation: protocol.DeletePolicy,
			Handler:   routes.deletePolicy,
		},
		{
			Path:      metricTemplateURL(),
			Method:    "POST",
			Operation: protocol.RecordMetric,
			Handler:   routes.recordMetric,
		},
	}

	rts := make([]*rest.Route, 0, len(descriptors))
	for _, desc := range descriptors {
		rts = append(rts, desc.AsRoute(middlewares...))
	}
	return rts
}

func (routes *Routes) registry(w rest.ResponseWriter, r *rest.Request) *registry.Registry {
	if r.Env[env.Namespace] == nil {
		i18n.Error(r, w, http.StatusUnauthorized, i18n.ErrorNamespaceNotFound)
		return nil
	}
	namespace := r.Env[env.Namespace].(auth.Namespace)
	reg, err := routes.registries.Registry(namespace)
	if err != nil {
		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorInternalServer)
		return nil
	}
	return reg
}

func statusCodeFromError(err error) int {
	if code, ok := fault.StatusCodeOf(err); ok {
		return code
	}
	switch fault.KindOf(err) {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.LockUnavailable:
		return http.StatusConflict
	case fault.Timeout:
		return http.StatusGatewayTimeout
	case fault.CircuitOpen, fault.BulkheadRejected, fault.RateLimitExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
