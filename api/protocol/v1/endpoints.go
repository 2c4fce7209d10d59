package v1

// Route parameter names, shared by the URL templates and the handlers
// that extract them.
const (
	RouteParamServiceID  = "sid"
	RouteParamInstanceID = "iid"
	RouteParamPolicyID   = "pid"
)

const (
	apiPath   = "/api"
	apiVer    = "/v1"
	heartbeat = "/heartbeat"
	status    = "/status"
	instances = "/instances"

	servicesPath  = apiPath + apiVer + "/services"
	instancesPath = apiPath + apiVer + "/instances"
	policiesPath  = apiPath + apiVer + "/policies/autoscale"
	metricsPath   = apiPath + apiVer + "/metrics"

	serviceTemplate           = servicesPath + "/#" + RouteParamServiceID
	serviceInstancesTemplate  = serviceTemplate + instances
	instanceTemplate          = instancesPath + "/#" + RouteParamInstanceID
	instanceHeartbeatTemplate = instanceTemplate + heartbeat
	instanceStatusTemplate    = instanceTemplate + status
	policyTemplate            = policiesPath + "/#" + RouteParamPolicyID
	metricTemplate            = metricsPath + "/#" + RouteParamServiceID
)

// The exported XxxURL functions produce concrete paths for clients.
// The unexported xxxTemplateURL counterparts produce the rest.Route
// templates the router is built from.

// ServicesURL is the path for registering and listing service definitions.
func ServicesURL() string {
	return servicesPath
}

// ServiceURL is the path addressing a single service definition.
func ServiceURL(id string) string {
	return servicesPath + "/" + id
}

func serviceTemplateURL() string {
	return serviceTemplate
}

// ServiceInstancesURL is the path addressing the instance collection of a service.
func ServiceInstancesURL(id string) string {
	return servicesPath + "/" + id + instances
}

func serviceInstancesTemplateURL() string {
	return serviceInstancesTemplate
}

// InstanceURL is the path addressing a single registered instance.
func InstanceURL(id string) string {
	return instancesPath + "/" + id
}

func instanceTemplateURL() string {
	return instanceTemplate
}

// InstanceHeartbeatURL is the path an instance renews its registration on.
func InstanceHeartbeatURL(id string) string {
	return instancesPath + "/" + id + heartbeat
}

func instanceHeartbeatTemplateURL() string {
	return instanceHeartbeatTemplate
}

// InstanceStatusURL is the path for updating an instance's reported status.
func InstanceStatusURL(id string) string {
	return instancesPath + "/" + id + status
}

func instanceStatusTemplateURL() string {
	return instanceStatusTemplate
}

// PoliciesURL is the path for adding and listing autoscaling policies.
func PoliciesURL() string {
	return policiesPath
}

// PolicyURL is the path addressing a single autoscaling policy.
func PolicyURL(id string) string {
	return policiesPath + "/" + id
}

func policyTemplateURL() string {
	return policyTemplate
}

// MetricURL is the path for recording a metric sample against a service.
func MetricURL(serviceID string) string {
	return metricsPath + "/" + serviceID
}

func metricTemplateURL() string {
	return metricTemplate
}
