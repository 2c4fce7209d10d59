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

package i18n

// Message identifiers resolved against the locale files under locales/.
// Every id listed here must have an entry in en-US.json, there is no
// code generation keeping the two in sync.
const (
	ErrorAuthorizationMissingHeader         = "error_auth_header_missing"
	ErrorAuthorizationMalformedHeader       = "error_auth_header_malformed"
	ErrorAuthorizationTokenValidationFailed = "error_auth_failed_validation"
	ErrorAuthorizationNotAuthorized         = "error_auth_not_authorized"
	ErrorEncoding                           = "error_encoding_generic"
	ErrorInstanceDeletionFailed             = "error_instance_deletion_failure"
	ErrorInstanceEnumeration                = "error_instance_enumeration"
	ErrorInstanceHeartbeatFailed            = "error_instance_heartbeat_failure"
	ErrorInstanceIdentifierMissing          = "error_instance_identifier_missing"
	ErrorInstanceNotFound                   = "error_instance_not_found"
	ErrorInstanceRegistrationFailed         = "error_instance_registration_failure"
	ErrorInstanceStatusInvalid              = "error_instance_status_invalid"
	ErrorInstanceStatusUpdateFailed         = "error_instance_status_update_failure"
	ErrorInternalServer                     = "error_internal"
	ErrorMetricNameMissing                  = "error_metric_name_missing"
	ErrorMetricRecordingFailed              = "error_metric_recording_failure"
	ErrorNamespaceNotFound                  = "error_namespace_undefined"
	ErrorNilObject                          = "error_nil_object"
	ErrorPolicyConflict                     = "error_policy_conflict"
	ErrorPolicyDeletionFailed               = "error_policy_deletion_failure"
	ErrorPolicyEnumeration                  = "error_policy_enumeration"
	ErrorPolicyIdentifierMissing            = "error_policy_identifier_missing"
	ErrorPolicyNotFound                     = "error_policy_not_found"
	ErrorPolicyRegistrationFailed           = "error_policy_registration_failure"
	ErrorPolicyUpdateFailed                 = "error_policy_update_failure"
	ErrorPolicyValidationFailed             = "error_policy_validation_failure"
	ErrorServiceDeletionFailed              = "error_service_deletion_failure"
	ErrorServiceEnumeration                 = "error_service_enumeration"
	ErrorServiceIdentifierMissing           = "error_service_identifier_missing"
	ErrorServiceNameMissing                 = "error_service_name_missing"
	ErrorServiceNotFound                    = "error_service_not_found"
	ErrorServiceRegistrationFailed          = "error_service_registration_failure"
	ErrorServiceValidationFailed            = "error_service_validation_failure"
)
