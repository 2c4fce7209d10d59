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

// Package config assembles the server configuration from built-in defaults,
// an optional YAML configuration file, environment variables, and commandline
// flags, in increasing order of precedence.
package config

import (
	"os"
	"reflect"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v2"

	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/dnsserver"
	"github.com/amalgam8/vigil/metrics"
	"github.com/amalgam8/vigil/pkg/errors"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
)

// Authentication modes
const (
	TrustedAuthMode = "trusted"
	JWTAuthMode     = "jwt"
)

// Values holds the actual configuration values used for the vigil server
type Values struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	AuthModes []string `yaml:"auth_mode"`
	JWTSecret string   `yaml:"jwt_secret"`

	APIPort int `yaml:"api_port"`

	DNS       bool   `yaml:"dns"`
	DNSPort   int    `yaml:"dns_port"`
	DNSDomain string `yaml:"dns_domain"`

	Store         string `yaml:"store"`
	StoreAddr     string `yaml:"store_address"`
	StorePassword string `yaml:"store_password"`

	DefaultTTL   time.Duration `yaml:"default_ttl"`
	EvalInterval time.Duration `yaml:"eval_interval"`

	KafkaBrokers  []string `yaml:"kafka_broker"`
	KafkaClientID string   `yaml:"kafka_client_id"`
	KafkaSASL     bool     `yaml:"kafka_sasl"`
	KafkaUser     string   `yaml:"kafka_user"`
	KafkaPassword string   `yaml:"kafka_password"`

	StatsdHost   string `yaml:"statsd_host"`
	StatsdPrefix string `yaml:"statsd_prefix"`
}

// DefaultValues defines default values for the various configuration options
var DefaultValues = Values{
	LogLevel:  "info",
	LogFormat: "text",

	APIPort: 8080,

	DNSPort:   8053,
	DNSDomain: dnsserver.DefaultDomain,

	Store: store.InMemory,

	DefaultTTL:   registry.DefaultStalenessTTL,
	EvalInterval: autoscale.DefaultEvaluationInterval,

	KafkaClientID: "vigil",

	StatsdPrefix: metrics.DefaultPrefix,
}

// New creates a new Values object from the given commandline flags,
// environment variables, and configuration file context
func New(context *cli.Context) (*Values, error) {
	values := DefaultValues

	// Load configuration from file, if specified
	if context.IsSet(configFlag) {
		if err := values.loadFromFile(context.String(configFlag)); err != nil {
			return nil, err
		}
	}

	// Load configuration from context (commandline flags and environment variables)
	if err := values.loadFromContext(context); err != nil {
		return nil, err
	}

	return &values, nil
}

func (v *Values) loadFromFile(configFile string) error {
	bytes, err := os.ReadFile(configFile)
	if err != nil {
		return errors.Wrap(err, "Failed reading configuration file")
	}

	if err := yaml.Unmarshal(bytes, v); err != nil {
		return errors.Wrapf(err, "Failed parsing configuration file %s", configFile)
	}
	return nil
}

func (v *Values) loadFromContext(context *cli.Context) error {
	loadFromContextIfSet := func(ptr interface{}, flagName string) {
		if !context.IsSet(flagName) {
			return
		}

		configValue := reflect.ValueOf(ptr).Elem()
		var flagValue interface{}
		switch configValue.Kind() {
		case reflect.Bool:
			flagValue = context.Bool(flagName)
		case reflect.String:
			flagValue = context.String(flagName)
		case reflect.Int:
			flagValue = context.Int(flagName)
		case reflect.Int64:
			flagValue = context.Duration(flagName)
		case reflect.Slice:
			switch configValue.Type().Elem().Kind() {
			case reflect.String:
				flagValue = context.StringSlice(flagName)
			default:
				log.Errorf("unsupported configuration type '%v' for '%v'", configValue.Kind(), flagName)
				return
			}
		default:
			log.Errorf("unsupported configuration type '%v' for '%v'", configValue.Kind(), flagName)
			return
		}

		configValue.Set(reflect.ValueOf(flagValue))
	}

	loadFromContextIfSet(&v.LogLevel, logLevelFlag)
	loadFromContextIfSet(&v.LogFormat, logFormatFlag)
	loadFromContextIfSet(&v.AuthModes, authModeFlag)
	loadFromContextIfSet(&v.JWTSecret, jwtSecretFlag)
	loadFromContextIfSet(&v.APIPort, restAPIPortFlag)
	loadFromContextIfSet(&v.DNS, dnsFlag)
	loadFromContextIfSet(&v.DNSPort, dnsPortFlag)
	loadFromContextIfSet(&v.DNSDomain, dnsDomainFlag)
	loadFromContextIfSet(&v.Store, storeFlag)
	loadFromContextIfSet(&v.StoreAddr, storeAddrFlag)
	loadFromContextIfSet(&v.StorePassword, storePasswordFlag)
	loadFromContextIfSet(&v.DefaultTTL, defaultTTLFlag)
	loadFromContextIfSet(&v.EvalInterval, evalIntervalFlag)
	loadFromContextIfSet(&v.KafkaBrokers, kafkaBrokerFlag)
	loadFromContextIfSet(&v.KafkaClientID, kafkaClientIDFlag)
	loadFromContextIfSet(&v.KafkaSASL, kafkaSASLFlag)
	loadFromContextIfSet(&v.KafkaUser, kafkaUserFlag)
	loadFromContextIfSet(&v.KafkaPassword, kafkaPasswordFlag)
	loadFromContextIfSet(&v.StatsdHost, statsdHostFlag)
	loadFromContextIfSet(&v.StatsdPrefix, statsdPrefixFlag)

	return nil
}

// Validate the configuration
func (v *Values) Validate() error {
	validators := []ValidatorFunc{
		IsInRange("API port", v.APIPort, 1, 65535),
		IsInSet("Store", v.Store, []string{store.InMemory, store.Redis}),
		IsInRangeDuration("Default heartbeat TTL", v.DefaultTTL, 5*time.Second, 1*time.Hour),
		IsInRangeDuration("Evaluation interval", v.EvalInterval, 1*time.Second, 1*time.Hour),
	}

	for _, mode := range v.AuthModes {
		validators = append(validators,
			IsInSet("Authentication mode", mode, []string{TrustedAuthMode, JWTAuthMode}))
		if mode == JWTAuthMode {
			validators = append(validators, IsNotEmpty("JWT secret", v.JWTSecret))
		}
	}

	if v.Store == store.Redis {
		validators = append(validators, IsNotEmpty("Store address", v.StoreAddr))
	}

	if v.DNS {
		validators = append(validators,
			IsInRange("DNS port", v.DNSPort, 1, 65535),
			IsValidDomain("DNS domain", v.DNSDomain))
	}

	if v.KafkaSASL {
		validators = append(validators,
			IsNotEmpty("Kafka SASL username", v.KafkaUser),
			IsNotEmpty("Kafka SASL password", v.KafkaPassword))
	}

	return Validate(validators)
}
