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

// Package server assembles and runs the vigil server: the backing store, the
// service registry, the health checker and the autoscaling evaluator, plus
// the REST, DNS, metric reporting and Kafka notification surfaces selected
// by the configuration.
package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/amalgam8/vigil/api"
	"github.com/amalgam8/vigil/api/i18n"
	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/config"
	"github.com/amalgam8/vigil/dnsserver"
	"github.com/amalgam8/vigil/health"
	"github.com/amalgam8/vigil/metrics"
	"github.com/amalgam8/vigil/notification"
	"github.com/amalgam8/vigil/pkg/auth"
	"github.com/amalgam8/vigil/pkg/version"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "SERVER"

// Main is the entrypoint for vigil when running as an executable
func Main() {
	app := cli.NewApp()

	app.Name = "vigil"
	app.Usage = "Resilience and Coordination Server"
	app.Version = version.Build.Version
	app.Flags = config.Flags
	app.Action = func(context *cli.Context) error {
		conf, err := config.New(context)
		if err != nil {
			return err
		}
		return Run(conf)
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("failure running main: %s", err.Error())
	}
}

// Run the vigil server with the given configuration. Run blocks until a
// termination signal arrives or a serving surface fails, then drains the
// components in reverse startup order.
func Run(conf *config.Values) error {

	// Configure logging
	parsedLogLevel, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(parsedLogLevel)

	formatter, err := logging.GetLogFormatter(conf.LogFormat)
	if err != nil {
		return err
	}
	log.SetFormatter(formatter)

	// Configure locales and translations
	if err := i18n.LoadLocales("./locales"); err != nil {
		return err
	}

	if err := conf.Validate(); err != nil {
		return err
	}

	logger := logging.GetLogger(module)

	backing, err := store.New(&store.Config{
		Type:          conf.Store,
		RedisAddress:  conf.StoreAddr,
		RedisPassword: conf.StorePassword,
	})
	if err != nil {
		return err
	}

	var authenticator auth.Authenticator
	if len(conf.AuthModes) > 0 {
		auths := make([]auth.Authenticator, len(conf.AuthModes))
		for i, mode := range conf.AuthModes {
			switch mode {
			case config.TrustedAuthMode:
				auths[i] = auth.NewTrustedAuthenticator()
			case config.JWTAuthMode:
				jwtAuth, err := auth.NewJWTAuthenticator([]byte(conf.JWTSecret))
				if err != nil {
					return fmt.Errorf("failed to create the authentication module: %s", err)
				}
				auths[i] = jwtAuth
			default:
				return fmt.Errorf("unrecognized authentication mode '%s'", mode)
			}
		}
		authenticator, err = auth.NewChainAuthenticator(auths)
		if err != nil {
			return err
		}
	} else {
		authenticator = auth.DefaultAuthenticator()
	}

	registries, err := registry.NewManager(backing, &registry.Config{
		StalenessTTL: conf.DefaultTTL,
	})
	if err != nil {
		return err
	}

	// The background components serve a single tenant: the namespace that
	// unauthenticated requests resolve to.
	defaultRegistry, err := registries.Registry(auth.GlobalNamespace)
	if err != nil {
		return err
	}

	policyValidator, err := autoscale.NewValidator()
	if err != nil {
		return err
	}
	policies, err := autoscale.NewManager(backing, policyValidator)
	if err != nil {
		return err
	}
	metricSource := autoscale.NewStoreMetrics(backing, 0)

	evaluator, err := autoscale.NewEvaluator(autoscale.EvaluatorConfig{
		Manager:  policies,
		Metrics:  metricSource,
		Registry: defaultRegistry,
		Store:    backing,
		Interval: conf.EvalInterval,
	})
	if err != nil {
		return err
	}

	checker, err := health.NewChecker(health.CheckerConfig{
		Registry: defaultRegistry,
		Store:    backing,
	})
	if err != nil {
		return err
	}

	var producer notification.Producer
	var bridge *notification.Bridge
	if len(conf.KafkaBrokers) > 0 {
		producer, err = notification.NewProducer(notification.ProducerConfig{
			ClientID: conf.KafkaClientID,
			Brokers:  conf.KafkaBrokers,
			SASL: notification.SASL{
				Enable:   conf.KafkaSASL,
				User:     conf.KafkaUser,
				Password: conf.KafkaPassword,
			},
		})
		if err != nil {
			return err
		}
		bridge, err = notification.NewBridge(notification.Config{
			Producer: producer,
			Store:    backing,
		})
		if err != nil {
			return err
		}
	}

	reporter := metrics.NewReporter()
	if conf.StatsdHost != "" {
		reporter, err = metrics.NewStatsdReporter(conf.StatsdHost, conf.StatsdPrefix)
		if err != nil {
			return err
		}
	}
	reports := newReporting(backing, reporter)

	var dnsServer *dnsserver.Server
	if conf.DNS {
		dnsServer, err = dnsserver.NewServer(dnsserver.Config{
			Discovery: defaultRegistry,
			Port:      uint16(conf.DNSPort),
			Domain:    conf.DNSDomain,
		})
		if err != nil {
			return err
		}
	}

	apiServer, err := api.NewServer(&api.Config{
		HTTPAddressSpec: fmt.Sprintf(":%d", conf.APIPort),
		Registries:      registries,
		Policies:        policies,
		Metrics:         metricSource,
		Authenticator:   authenticator,
	})
	if err != nil {
		return err
	}

	if err := checker.Start(); err != nil {
		return err
	}
	if err := evaluator.Start(); err != nil {
		return err
	}
	if bridge != nil {
		if err := bridge.Start(); err != nil {
			return err
		}
	}
	if err := reports.Start(); err != nil {
		return err
	}

	go metrics.DumpPeriodically()

	serveErrors := make(chan error, 2)
	go func() {
		serveErrors <- apiServer.Start()
	}()
	if dnsServer != nil {
		go func() {
			serveErrors <- dnsServer.ListenAndServe()
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-serveErrors:
	case sig := <-signals:
		logger.Infof("Received signal %v, shutting down", sig)
		err = nil
	}

	if dnsServer != nil {
		if e := dnsServer.Shutdown(); e != nil {
			logger.WithError(e).Warn("Failed to shut down the DNS server")
		}
	}
	apiServer.Stop()
	reports.Stop()
	if bridge != nil {
		bridge.Stop()
		if e := producer.Close(); e != nil {
			logger.WithError(e).Warn("Failed to close the Kafka producer")
		}
	}
	evaluator.Stop()
	checker.Stop()
	if e := reporter.Close(); e != nil {
		logger.WithError(e).Warn("Failed to close the metric reporter")
	}
	if e := backing.Close(); e != nil {
		logger.WithError(e).Warn("Failed to close the store")
	}

	return err
}
