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

package health

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	defaultHTTPMethod = http.MethodGet
	defaultHTTPCode   = http.StatusOK
)

var knownHTTPMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// HTTP performs HTTP(S) probes.
type HTTP struct {
	client *http.Client

	url    string
	method string
	code   int
}

// NewHTTP creates a new HTTP health check.
func NewHTTP(conf CheckConfig) (Check, error) {
	if err := validateHTTPConfig(&conf); err != nil {
		return nil, err
	}

	client, err := probeClient(conf)
	if err != nil {
		return nil, err
	}

	return &HTTP{
		client: client,
		url:    conf.Value,
		method: conf.Method,
		code:   conf.Code,
	}, nil
}

// probeClient builds the probe's HTTP client. HTTPS probes configured with
// a CA bundle get a transport trusting exactly that bundle.
func probeClient(conf CheckConfig) (*http.Client, error) {
	if conf.Type != HTTPSCheck || conf.CACertPath == "" {
		return &http.Client{Timeout: conf.Timeout}, nil
	}

	caCerts, err := os.ReadFile(conf.CACertPath)
	if err != nil {
		log.WithError(err).Debugf("Error reading CA trust file: %s", conf.CACertPath)
		return nil, err
	}
	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(caCerts)

	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: certPool}},
		Timeout:   conf.Timeout,
	}, nil
}

// validateHTTPConfig validates, sanitizes, and sets defaults for an HTTP health check configuration.
func validateHTTPConfig(conf *CheckConfig) error {
	switch conf.Type {
	case "", HTTPCheck, HTTPSCheck:
	default:
		return fmt.Errorf("invalid type for an HTTP healthcheck: '%s'", conf.Type)
	}

	if conf.Value == "" {
		return fmt.Errorf("empty URL for HTTP healthcheck")
	}
	u, err := url.Parse(conf.Value)
	if err != nil {
		return fmt.Errorf("error parsing URL '%s' for HTTP healthcheck: %v", conf.Value, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL '%s' for HTTP healthcheck", conf.Value)
	}

	if conf.Method == "" {
		conf.Method = defaultHTTPMethod
	} else if !knownHTTPMethods[conf.Method] {
		return fmt.Errorf("invalid method for an HTTP healthcheck: '%s'", conf.Method)
	}

	if conf.Code == 0 {
		conf.Code = defaultHTTPCode
	} else if conf.Code < 100 || conf.Code > 599 {
		return fmt.Errorf("invalid code for an HTTP healthcheck: '%d'", conf.Code)
	}

	applyTimingDefaults(conf)
	return nil
}

// Execute an HTTP operation on the URL and check the response code.
func (h *HTTP) Execute(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != h.code {
		return fmt.Errorf("healthcheck returned %v, expected %v", resp.StatusCode, h.code)
	}
	return nil
}
