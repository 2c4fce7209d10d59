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
	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/pkg/fault"
)

func (routes *Routes) addPolicy(w rest.ResponseWriter, r *rest.Request) {
	var req autoscale.Policy
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to add autoscaling policy")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorPolicyRegistrationFailed)
		return
	}

	policy, err := routes.policies.AddPolicy(&req)
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to add autoscaling policy for service %s", req.ServiceID)

		i18n.Error(r, w, statusCodeFromError(err), policyErrorID(err, i18n.ErrorPolicyRegistrationFailed))
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Autoscaling policy %s added for service %s", policy.ID, policy.ServiceID)

	w.Header().Set("Location", PolicyURL(policy.ID))
	w.WriteHeader(http.StatusCreated)
	if err := w.WriteJson(policy); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to write response for policy %s", policy.ID)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) listPolicies(w rest.ResponseWriter, r *rest.Request) {
	policies, err := routes.policies.ListPolicies()
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to list autoscaling policies")

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorPolicyEnumeration)
		return
	}

	if err := w.WriteJson(&PoliciesList{Policies: policies}); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warn("Failed to encode policies list response")

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Lookup autoscaling policies (%d)", len(policies))
}

func (routes *Routes) getPolicy(w rest.ResponseWriter, r *rest.Request) {
	pid := r.PathParam(RouteParamPolicyID)
	if pid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "policy id is required",
		}).Warn("Failed to lookup autoscaling policy")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorPolicyIdentifierMissing)
		return
	}

	policy, err := routes.policies.GetPolicy(pid)
	if err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to lookup autoscaling policy %s", pid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorPolicyNotFound)
		return
	}

	if err := w.WriteJson(policy); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to encode policy %s", pid)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) updatePolicy(w rest.ResponseWriter, r *rest.Request) {
	pid := r.PathParam(RouteParamPolicyID)
	if pid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "policy id is required",
		}).Warn("Failed to update autoscaling policy")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorPolicyIdentifierMissing)
		return
	}

	var req autoscale.Policy
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to update autoscaling policy %s", pid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorPolicyValidationFailed)
		return
	}

	if req.ID != "" && req.ID != pid {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "body policy id does not match the request path",
		}).Warnf("Failed to update autoscaling policy %s", pid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorPolicyValidationFailed)
		return
	}
	req.ID = pid

	if err := routes.policies.UpdatePolicy(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to update autoscaling policy %s", pid)

		i18n.Error(r, w, statusCodeFromError(err), policyErrorID(err, i18n.ErrorPolicyUpdateFailed))
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Autoscaling policy %s updated", pid)

	if err := w.WriteJson(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to encode policy %s", pid)

		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorEncoding)
	}
}

func (routes *Routes) deletePolicy(w rest.ResponseWriter, r *rest.Request) {
	pid := r.PathParam(RouteParamPolicyID)
	if pid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "policy id is required",
		}).Warn("Failed to delete autoscaling policy")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorPolicyIdentifierMissing)
		return
	}

	if err := routes.policies.DeletePolicy(pid); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to delete autoscaling policy %s", pid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorPolicyDeletionFailed)
		return
	}

	routes.logger.WithFields(log.Fields{
		"namespace": r.Env[env.Namespace],
	}).Infof("Autoscaling policy %s deleted", pid)

	w.WriteHeader(http.StatusOK)
}

// policyErrorID maps a policy operation error to the most specific message id.
func policyErrorID(err error, fallback string) string {
	if code, ok := fault.StatusCodeOf(err); ok && code == http.StatusConflict {
		return i18n.ErrorPolicyConflict
	}
	switch {
	case fault.IsValidation(err):
		return i18n.ErrorPolicyValidationFailed
	case fault.IsNotFound(err):
		return i18n.ErrorPolicyNotFound
	}
	return fallback
}
