package autoscale

import (
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/utils/logging"
)

// Scaler applies a scaling decision to a service's fleet. Fleet actuation
// belongs to an external collaborator; implementations bridge to it.
type Scaler interface {
	Scale(serviceID string, current, desired int) error
}

type logScaler struct {
	logger *log.Entry
}

// NewLogScaler returns a Scaler that records decisions without touching any
// fleet. The evaluator persists the desired count through the policy manager
// regardless of the configured scaler.
func NewLogScaler() Scaler {
	return &logScaler{
		logger: logging.GetLogger(module),
	}
}

func (s *logScaler) Scale(serviceID string, current, desired int) error {
	s.logger.WithFields(log.Fields{
		"service_id": serviceID,
		"current":    current,
		"desired":    desired,
	}).Info("Scaling decision applied")
	return nil
}
