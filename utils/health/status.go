package health

// Status is the outcome of a single health check.
type Status struct {
	Healthy    bool                   `json:"healthy"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Healthy is the plain healthy status, no properties attached.
var Healthy = Status{Healthy: true}

// withProperty returns a copy of the status with the property set.
// Empty values are skipped so a bare status stays property-free.
func (s Status) withProperty(key, value string) Status {
	if value == "" {
		return s
	}
	props := make(map[string]interface{}, len(s.Properties)+1)
	for k, v := range s.Properties {
		props[k] = v
	}
	props[key] = value
	s.Properties = props
	return s
}

// StatusHealthy creates a healthy status carrying a message property.
// For the plain case use the Healthy value directly.
func StatusHealthy(message string) Status {
	return Healthy.withProperty("message", message)
}

// StatusHealthyWithProperties creates a healthy status carrying arbitrary properties.
func StatusHealthyWithProperties(properties map[string]interface{}) Status {
	return Status{Healthy: true, Properties: properties}
}

// StatusUnhealthy creates an unhealthy status carrying message and cause properties.
func StatusUnhealthy(message string, cause error) Status {
	s := Status{}.withProperty("message", message)
	if cause != nil {
		s = s.withProperty("cause", cause.Error())
	}
	return s
}

// StatusUnhealthyWithProperties creates an unhealthy status carrying arbitrary properties.
func StatusUnhealthyWithProperties(properties map[string]interface{}) Status {
	return Status{Properties: properties}
}
