package v1

import (
	"net/http"

	"github.com/ant0ine/go-json-rest/rest"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/api/env"
	"github.com/amalgam8/vigil/api/i18n"
)

func (routes *Routes) recordMetric(w rest.ResponseWriter, r *rest.Request) {
	sid := r.PathParam(RouteParamServiceID)
	if sid == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "service id is required",
		}).Warn("Failed to record metric sample")

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorServiceIdentifierMissing)
		return
	}

	var req MetricSample
	if err := r.DecodeJsonPayload(&req); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to record metric sample for service %s", sid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorMetricRecordingFailed)
		return
	}

	if req.Metric == "" {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     "metric name is required",
		}).Warnf("Failed to record metric sample for service %s", sid)

		i18n.Error(r, w, http.StatusBadRequest, i18n.ErrorMetricNameMissing)
		return
	}

	if err := routes.metrics.Record(sid, req.Metric, req.Value); err != nil {
		routes.logger.WithFields(log.Fields{
			"namespace": r.Env[env.Namespace],
			"error":     err,
		}).Warnf("Failed to record metric sample %s for service %s", req.Metric, sid)

		i18n.Error(r, w, statusCodeFromError(err), i18n.ErrorMetricRecordingFailed)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
