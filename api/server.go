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

package api

import (
	"net"
	"net/http"

	"github.com/ant0ine/go-json-rest/rest"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/api/middleware"
	"github.com/amalgam8/vigil/api/protocol/v1"
	"github.com/amalgam8/vigil/api/uptime"
	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const (
	module = "API"

	defaultHTTPAddressSpec = ":8080"
)

// Server is the lifecycle handle of the REST API.
type Server interface {
	Start() error
	Stop()
}

type server struct {
	config   *Config
	listener net.Listener
	logger   *log.Entry
}

// NewServer assembles a REST API server from the given configuration.
func NewServer(conf *Config) (Server, error) {
	if conf == nil {
		return nil, fault.New(fault.Validation, "null API server configuration provided")
	}

	s := &server{
		config: &*conf,
		logger: logging.GetLogger(module),
	}
	if err := s.applyDefaults(); err != nil {
		return nil, err
	}

	s.logger.Infof("Creating REST API on %s", s.config.HTTPAddressSpec)
	return s, nil
}

// applyDefaults backs any unset collaborator with a shared in-memory
// store, keeping the server functional for local runs and tests.
func (s *server) applyDefaults() error {
	if s.config.HTTPAddressSpec == "" {
		s.config.HTTPAddressSpec = defaultHTTPAddressSpec
	}

	if s.config.Registries != nil && s.config.Policies != nil && s.config.Metrics != nil {
		return nil
	}

	backing, err := store.New(nil)
	if err != nil {
		return err
	}
	if s.config.Registries == nil {
		if s.config.Registries, err = registry.NewManager(backing, nil); err != nil {
			return err
		}
	}
	if s.config.Policies == nil {
		if s.config.Policies, err = autoscale.NewManager(backing, nil); err != nil {
			return err
		}
	}
	if s.config.Metrics == nil {
		s.config.Metrics = autoscale.NewStoreMetrics(backing, 0)
	}
	return nil
}

func (s *server) Start() error {
	handler, err := s.setup()
	if err != nil {
		return err
	}
	return s.serve(handler)
}

func (s *server) Stop() {
	s.logger.Info("Stopping REST API server")

	if s.listener == nil {
		return
	}
	if err := s.listener.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close listener")
	}
}

func (s *server) setup() (http.Handler, error) {
	restAPI := rest.NewApi()
	restAPI.Use(s.middlewares()...)

	log.SetOutput(s.logger.Logger.Out)

	router, err := rest.MakeRouter(s.routes()...)
	if err != nil {
		return nil, err
	}

	restAPI.SetApp(router)
	return restAPI.MakeHandler(), nil
}

// middlewares assembles the chain. Recovery, logging and tracing wrap
// everything; configured extension middlewares run before metering.
func (s *server) middlewares() []rest.Middleware {
	mws := []rest.Middleware{
		&rest.RecoverMiddleware{},
		&middleware.AccessLog{},
		middleware.NewTrace(),
	}

	for _, mw := range s.config.Middlewares {
		if mw != nil {
			mws = append(mws, mw)
		}
	}

	return append(mws,
		&middleware.MetricsMiddleware{},
		&rest.TimerMiddleware{},
		&rest.RecorderMiddleware{},
		&middleware.GzipMiddleware{},
		&rest.ContentTypeCheckerMiddleware{})
}

// routes lays out the liveness endpoints next to the authenticated v1
// operations.
func (s *server) routes() []*rest.Route {
	v1Routes := v1.New(s.config.Registries, s.config.Policies, s.config.Metrics)
	authMw := &middleware.AuthMiddleware{Authenticator: s.config.Authenticator}

	routes := uptime.RouteHandlers()
	return append(routes, v1Routes.RouteHandlers(authMw)...)
}

func (s *server) serve(h http.Handler) error {
	s.logger.Infof("Starting REST API on %s", s.config.HTTPAddressSpec)

	listener, err := net.Listen("tcp", s.config.HTTPAddressSpec)
	if err != nil {
		s.logger.WithError(err).Error("Failed to start the server")
		return err
	}
	s.listener = listener

	if err := http.Serve(listener, h); err != nil {
		s.logger.WithError(err).Warn("Server has aborted")
		return err
	}
	return nil
}
