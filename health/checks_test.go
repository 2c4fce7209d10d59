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
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func TestHealthChecks(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Health Check Suite")
}

var _ = Describe("HTTP health check", func() {

	Context("When constructing a new HTTP health check", func() {

		var check Check
		var hc *HTTP
		var err error

		Context("Using explicit configuration values", func() {
			conf := CheckConfig{
				Type:     "http",
				Value:    "http://localhost:8082/healthcheck",
				Method:   "POST",
				Code:     201,
				Interval: 45 * time.Second,
				Timeout:  5 * time.Second,
			}

			BeforeEach(func() {
				check, err = NewHTTP(conf)
				hc, _ = check.(*HTTP)
			})

			It("Successfully creates a healthcheck", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(hc).ToNot(BeNil())
			})

			It("Uses the configured values", func() {
				Expect(hc.url).To(Equal(conf.Value))
				Expect(hc.code).To(Equal(conf.Code))
				Expect(hc.method).To(Equal(conf.Method))
				Expect(hc.client.Timeout).To(Equal(conf.Timeout))
			})
		})

		Context("Using default configuration values", func() {
			conf := CheckConfig{
				Type:  "http",
				Value: "http://localhost:8082/healthcheck",
			}

			BeforeEach(func() {
				check, err = NewHTTP(conf)
				hc, _ = check.(*HTTP)
			})

			It("Sets default values for missing fields", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(hc.method).To(Equal(http.MethodGet))
				Expect(hc.code).To(Equal(http.StatusOK))
				Expect(hc.client.Timeout).To(Equal(defaultTimeout))
			})
		})

		Context("Using invalid configuration values", func() {

			It("Rejects an invalid type", func() {
				_, err = NewHTTP(CheckConfig{Type: "tcp", Value: "http://localhost/"})
				Expect(err).To(HaveOccurred())
			})

			It("Rejects an empty URL", func() {
				_, err = NewHTTP(CheckConfig{Type: "http"})
				Expect(err).To(HaveOccurred())
			})

			It("Rejects a URL without a scheme", func() {
				_, err = NewHTTP(CheckConfig{Type: "http", Value: "localhost:8082"})
				Expect(err).To(HaveOccurred())
			})

			It("Rejects an unknown method", func() {
				_, err = NewHTTP(CheckConfig{Type: "http", Value: "http://localhost/", Method: "FETCH"})
				Expect(err).To(HaveOccurred())
			})

			It("Rejects an out-of-range code", func() {
				_, err = NewHTTP(CheckConfig{Type: "http", Value: "http://localhost/", Code: 42})
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Context("When executing HTTP health checks", func() {

		var server *httptest.Server
		var responseCode int

		BeforeEach(func() {
			responseCode = http.StatusOK
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(responseCode)
			}))
		})

		AfterEach(func() {
			server.Close()
		})

		It("Passes when the expected code is returned", func() {
			check, err := NewHTTP(CheckConfig{Type: "http", Value: server.URL})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.Execute(context.Background())).To(Succeed())
		})

		It("Fails when an unexpected code is returned", func() {
			responseCode = http.StatusInternalServerError
			check, err := NewHTTP(CheckConfig{Type: "http", Value: server.URL})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.Execute(context.Background())).ToNot(Succeed())
		})

		It("Honors a non-200 expected code", func() {
			responseCode = http.StatusCreated
			check, err := NewHTTP(CheckConfig{Type: "http", Value: server.URL, Code: http.StatusCreated})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.Execute(context.Background())).To(Succeed())
		})

		It("Fails when the context is already cancelled", func() {
			check, err := NewHTTP(CheckConfig{Type: "http", Value: server.URL})
			Expect(err).ToNot(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(check.Execute(ctx)).ToNot(Succeed())
		})

		It("Probes with the configured method and path", func() {
			probed := ghttp.NewServer()
			defer probed.Close()
			probed.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("HEAD", "/status"),
					ghttp.RespondWith(http.StatusOK, nil),
				),
			)

			check, err := NewHTTP(CheckConfig{Type: "http", Value: probed.URL() + "/status", Method: "HEAD"})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.Execute(context.Background())).To(Succeed())
			Expect(probed.ReceivedRequests()).To(HaveLen(1))
		})
	})
})

var _ = Describe("TCP health check", func() {

	Context("When constructing a new TCP health check", func() {

		It("Rejects an invalid type", func() {
			_, err := NewTCP(CheckConfig{Type: "http", Value: "localhost:80"})
			Expect(err).To(HaveOccurred())
		})

		It("Rejects an empty address", func() {
			_, err := NewTCP(CheckConfig{Type: "tcp"})
			Expect(err).To(HaveOccurred())
		})

		It("Rejects an address without a port", func() {
			_, err := NewTCP(CheckConfig{Type: "tcp", Value: "localhost"})
			Expect(err).To(HaveOccurred())
		})

		It("Sets default values for missing fields", func() {
			check, err := NewTCP(CheckConfig{Type: "tcp", Value: "localhost:80"})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.(*TCP).timeout).To(Equal(defaultTimeout))
		})
	})

	Context("When executing TCP health checks", func() {

		It("Passes when the port accepts connections", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			defer listener.Close()

			check, err := NewTCP(CheckConfig{Type: "tcp", Value: listener.Addr().String()})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.Execute(context.Background())).To(Succeed())
		})

		It("Fails when nothing is listening", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			address := listener.Addr().String()
			listener.Close()

			check, err := NewTCP(CheckConfig{Type: "tcp", Value: address, Timeout: 250 * time.Millisecond})
			Expect(err).ToNot(HaveOccurred())
			Expect(check.Execute(context.Background())).ToNot(Succeed())
		})
	})
})
