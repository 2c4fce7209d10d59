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
	"fmt"
	"net/http"

	"github.com/ant0ine/go-json-rest/rest"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/api/env"
	"github.com/amalgam8/vigil/api/i18n"
	"github.com/amalgam8/vigil/registry"
)

func (routes *Routes) registerInstance(w rest.ResponseWriter, r *rest.Request) {
	sid := r.PathParam(RouteParamServiceID)
	if sid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service id is required",
		}).Warn("Failed to register instance")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceIdentifierMissing)
		return
	}

	var req registry.ServiceInstance
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to register instance")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceRegistrationFailed)
		return
	}

	if req.ServiceID != "" && req.ServiceID != sid {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "body service id does not match the request path",
		}).Warnf("Failed to register instance %+v", req)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceRegistrationFailed)
		return
	}
	req.ServiceID = sid

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	sir, err := reg.RegisterInstance(&req)
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to register instance %+v", req)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorInstanceRegistrationFailed)
		return
	} else if sir == nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "instance is nil",
		}).Warnf("Failed to register instance %+v", req)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorNilObject)
		return
	} else if sir.ID == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "instance id is empty",
		}).Warnf("Failed to register instance %s", sir)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorInstanceIdentifierMissing)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Instance %s registered", sir)

	w.Header().Set("Location", InstanceURL(sir.ID))
	w.WriteHeader(http.StatusCreated)
	if err := w.WriteJson(sir); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to write registration response for instance %s", sir)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) deregisterInstance(w rest.ResponseWriter, r *rest.Request) {
	iid := r.PathParam(RouteParamInstanceID)
	if iid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "instance id is required",
		}).Warn("Failed to deregister instance")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceIdentifierMissing)
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	if err := reg.DeregisterInstance(iid); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to deregister instance %s", iid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorInstanceDeletionFailed)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Instance id %s deregistered", iid)

	w.WriteHeader(http.StatusOK)
}

func (routes *Routes) renewInstance(w rest.ResponseWriter, r *rest.Request) {
	iid := r.PathParam(RouteParamInstanceID)
	if iid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "instance id is required",
		}).Warn("Failed to renew instance")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceIdentifierMissing)
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	if err := reg.UpdateInstanceHeartbeat(iid); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to renew instance %s", iid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorInstanceHeartbeatFailed)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (routes *Routes) setInstanceStatus(w rest.ResponseWriter, r *rest.Request) {
	iid := r.PathParam(RouteParamInstanceID)
	if iid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "instance id is required",
		}).Warn("Failed to update instance status")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceIdentifierMissing)
		return
	}

	var req StatusUpdate
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to update status of instance %s", iid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceStatusUpdateFailed)
		return
	}

	if !req.Status.Valid() {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "status field is not a valid value",
		}).Warnf("Failed to update status of instance %s", iid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorInstanceStatusInvalid,
			map[string]interface{}{"Status": fmt.Sprintf("%s, %s, %s, %s, %s, %s",
				registry.InstanceStarting, registry.InstanceRunning, registry.InstanceStopping,
				registry.InstanceStopped, registry.InstanceUnhealthy, registry.InstanceFailed)})
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	if err := reg.UpdateInstanceStatus(iid, req.Status); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to update status of instance %s", iid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorInstanceStatusUpdateFailed)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Instance %s status set to %s", iid, req.Status)

	w.WriteHeader(http.StatusOK)
}

func (routes *Routes) listServiceInstances(w rest.ResponseWriter, r *rest.Request) {
	sid := r.PathParam(RouteParamServiceID)
	if sid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service id is required",
		}).Warn("Failed to list instances")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceIdentifierMissing)
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	var insts []*registry.ServiceInstance
	var err error
	if r.URL.Query().Get("healthy") == "true" {
		insts, err = reg.GetHealthyInstances(sid)
	} else {
		insts, err = reg.GetServiceInstances(sid)
	}
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to list instances of service %s", sid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorInstanceEnumeration)
		return
	}

	if err := w.WriteJson(&InstancesList{Instances: insts}); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to encode instances list response")

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Lookup instances of service %s (%d)", sid, len(insts))
}
