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
	"github.com/amalgam8/vigil/registry"
)

func (routes *Routes) registerService(w rest.ResponseWriter, r *rest.Request) {
	var req registry.ServiceDefinition
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to register service")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceRegistrationFailed)
		return
	}

	if req.Name == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service name is required",
		}).Warnf("Failed to register service %+v", req)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceNameMissing)
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		// error to client already set
		return
	}

	sd, err := reg.RegisterService(&req)
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to register service %+v", req)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorServiceRegistrationFailed)
		return
	} else if sd == nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service definition is nil",
		}).Warnf("Failed to register service %+v", req)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorNilObject)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Service %s registered", sd.ID)

	w.Header().Set("Location", ServiceURL(sd.ID))
	w.WriteHeader(http.StatusCreated)
	if err := w.WriteJson(sd); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to write registration response for service %s", sd.ID)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) listServices(w rest.ResponseWriter, r *rest.Request) {
	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	services := reg.ListServices()
	if err := w.WriteJson(&ServicesList{Services: services}); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to encode services list response")

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Lookup services (%d)", len(services))
}

func (routes *Routes) getService(w rest.ResponseWriter, r *rest.Request) {
	sid := r.PathParam(RouteParamServiceID)
	if sid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service id is required",
		}).Warn("Failed to lookup service")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceIdentifierMissing)
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	sd, err := reg.GetService(sid)
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to lookup service %s", sid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorServiceNotFound)
		return
	}

	if err := w.WriteJson(sd); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to encode service %s", sid)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) updateService(w rest.ResponseWriter, r *rest.Request) {
	sid := r.PathParam(RouteParamServiceID)
	if sid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service id is required",
		}).Warn("Failed to update service")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceIdentifierMissing)
		return
	}

	var req registry.ServiceDefinition
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to update service %s", sid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceValidationFailed)
		return
	}

	if req.ID != "" && req.ID != sid {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "body service id does not match the request path",
		}).Warnf("Failed to update service %s", sid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceValidationFailed)
		return
	}
	req.ID = sid
	if req.Name == "" {
		req.Name = sid
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	sd, err := reg.RegisterService(&req)
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to update service %s", sid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorServiceRegistrationFailed)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Service %s updated", sd.ID)

	if err := w.WriteJson(sd); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to encode service %s", sid)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) deregisterService(w rest.ResponseWriter, r *rest.Request) {
	sid := r.PathParam(RouteParamServiceID)
	if sid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service id is required",
		}).Warn("Failed to deregister service")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceIdentifierMissing)
		return
	}

	reg := routes.registry(w, r)
	if reg == nil {
		return
	}

	if err := reg.DeregisterService(sid); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to deregister service %s", sid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorServiceDeletionFailed)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Service %s deregistered", sid)

	w.WriteHeader(http.StatusOK)
}
