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

package config

import (
	"strings"

	"github.com/urfave/cli"

	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/dnsserver"
	"github.com/amalgam8/vigil/metrics"
	"github.com/amalgam8/vigil/registry"
)

// Flag names
const (
	configFlag = "config"

	logLevelFlag  = "log_level"
	logFormatFlag = "log_format"

	authModeFlag  = "auth_mode"
	jwtSecretFlag = "jwt_secret"

	restAPIPortFlag = "api_port"

	dnsFlag       = "dns"
	dnsPortFlag   = "dns_port"
	dnsDomainFlag = "dns_domain"

	storeFlag         = "store"
	storeAddrFlag     = "store_address"
	storePasswordFlag = "store_password"

	defaultTTLFlag   = "default_ttl"
	evalIntervalFlag = "eval_interval"

	kafkaBrokerFlag   = "kafka_broker"
	kafkaClientIDFlag = "kafka_client_id"
	kafkaSASLFlag     = "kafka_sasl"
	kafkaUserFlag     = "kafka_user"
	kafkaPasswordFlag = "kafka_password"

	statsdHostFlag   = "statsd_host"
	statsdPrefixFlag = "statsd_prefix"
)

// Flags represents the set of supported flags
var Flags = []cli.Flag{

	cli.StringFlag{
		Name:   configFlag,
		EnvVar: envVarFromFlag(configFlag),
		Usage:  "Load configuration from file",
	},

	cli.StringFlag{
		Name:   logLevelFlag,
		EnvVar: envVarFromFlag(logLevelFlag),
		Value:  "info",
		Usage:  "Logging level. Supported values are: 'debug', 'info', 'warn', 'error', 'fatal', 'panic'",
	},

	cli.StringFlag{
		Name:   logFormatFlag,
		EnvVar: envVarFromFlag(logFormatFlag),
		Value:  "text",
		Usage:  "Logging format. Supported values are: 'text', 'json'",
	},

	cli.StringSliceFlag{
		Name:   authModeFlag,
		EnvVar: envVarFromFlag(authModeFlag),
		Usage:  "Authentication modes. Supported values are: 'trusted', 'jwt'",
	},

	cli.StringFlag{
		Name:   jwtSecretFlag,
		EnvVar: envVarFromFlag(jwtSecretFlag),
		Usage:  "Secret key for JWT authentication",
	},

	cli.IntFlag{
		Name:   restAPIPortFlag,
		EnvVar: envVarFromFlag(restAPIPortFlag),
		Value:  8080,
		Usage:  "REST API port number",
	},

	cli.BoolFlag{
		Name:   dnsFlag,
		EnvVar: envVarFromFlag(dnsFlag),
		Usage:  "Enable DNS discovery server",
	},

	cli.IntFlag{
		Name:   dnsPortFlag,
		EnvVar: envVarFromFlag(dnsPortFlag),
		Value:  8053,
		Usage:  "DNS server port number",
	},

	cli.StringFlag{
		Name:   dnsDomainFlag,
		EnvVar: envVarFromFlag(dnsDomainFlag),
		Value:  dnsserver.DefaultDomain,
		Usage:  "DNS server authoritative domain name",
	},

	cli.StringFlag{
		Name:   storeFlag,
		EnvVar: envVarFromFlag(storeFlag),
		Value:  "inmem",
		Usage:  "Backing store. Supported values are: 'inmem', 'redis'",
	},

	cli.StringFlag{
		Name:   storeAddrFlag,
		EnvVar: envVarFromFlag(storeAddrFlag),
		Value:  "",
		Usage:  "Store address",
	},

	cli.StringFlag{
		Name:   storePasswordFlag,
		EnvVar: envVarFromFlag(storePasswordFlag),
		Value:  "",
		Usage:  "Store password",
	},

	cli.DurationFlag{
		Name:   defaultTTLFlag,
		EnvVar: envVarFromFlag(defaultTTLFlag),
		Value:  registry.DefaultStalenessTTL,
		Usage:  "Default heartbeat TTL for instances of services without a health check",
	},

	cli.DurationFlag{
		Name:   evalIntervalFlag,
		EnvVar: envVarFromFlag(evalIntervalFlag),
		Value:  autoscale.DefaultEvaluationInterval,
		Usage:  "Interval between autoscaling policy evaluations",
	},

	cli.StringSliceFlag{
		Name:   kafkaBrokerFlag,
		EnvVar: envVarFromFlag(kafkaBrokerFlag),
		Usage:  "List of Kafka broker addresses. Enables the event notification bridge",
	},

	cli.StringFlag{
		Name:   kafkaClientIDFlag,
		EnvVar: envVarFromFlag(kafkaClientIDFlag),
		Value:  "vigil",
		Usage:  "Kafka client identifier",
	},

	cli.BoolFlag{
		Name:   kafkaSASLFlag,
		EnvVar: envVarFromFlag(kafkaSASLFlag),
		Usage:  "Use SASL/PLAIN authentication for Kafka",
	},

	cli.StringFlag{
		Name:   kafkaUserFlag,
		EnvVar: envVarFromFlag(kafkaUserFlag),
		Usage:  "Kafka SASL username",
	},

	cli.StringFlag{
		Name:   kafkaPasswordFlag,
		EnvVar: envVarFromFlag(kafkaPasswordFlag),
		Usage:  "Kafka SASL password",
	},

	cli.StringFlag{
		Name:   statsdHostFlag,
		EnvVar: envVarFromFlag(statsdHostFlag),
		Usage:  "Statsd host, e.g. '127.0.0.1:8125'. Resilience metrics are logged when unset",
	},

	cli.StringFlag{
		Name:   statsdPrefixFlag,
		EnvVar: envVarFromFlag(statsdPrefixFlag),
		Value:  metrics.DefaultPrefix,
		Usage:  "Statsd metric name prefix",
	},
}

// envVarFromFlag returns the environment variable bound to the given flag
func envVarFromFlag(name string) string {
	return "VIGIL_" + strings.ToUpper(name)
}
