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
	"fmt"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/urfave/cli"

	"github.com/amalgam8/vigil/store"
)

var _ = Describe("Config", func() {

	var (
		c    *Values
		cErr error
	)

	newApp := func() *cli.App {
		app := cli.NewApp()
		app.Name = "vigil"
		app.Usage = "Vigil Server"
		app.Flags = Flags
		app.Action = func(context *cli.Context) error {
			c, cErr = New(context)
			return cErr
		}
		return app
	}

	Context("config loaded with default values", func() {

		BeforeEach(func() {
			Expect(newApp().Run(os.Args[:1])).NotTo(HaveOccurred())
		})

		It("uses default config values", func() {
			Expect(c.LogLevel).To(Equal(DefaultValues.LogLevel))
			Expect(c.LogFormat).To(Equal(DefaultValues.LogFormat))
			Expect(c.AuthModes).To(BeEmpty())
			Expect(c.APIPort).To(Equal(8080))
			Expect(c.DNS).To(BeFalse())
			Expect(c.DNSPort).To(Equal(8053))
			Expect(c.DNSDomain).To(Equal(DefaultValues.DNSDomain))
			Expect(c.Store).To(Equal(store.InMemory))
			Expect(c.DefaultTTL).To(Equal(DefaultValues.DefaultTTL))
			Expect(c.EvalInterval).To(Equal(DefaultValues.EvalInterval))
			Expect(c.KafkaBrokers).To(BeEmpty())
			Expect(c.KafkaClientID).To(Equal("vigil"))
			Expect(c.StatsdHost).To(BeEmpty())
			Expect(c.StatsdPrefix).To(Equal(DefaultValues.StatsdPrefix))
		})

		It("passes validation", func() {
			Expect(c.Validate()).NotTo(HaveOccurred())
		})
	})

	Context("config overridden with command line flags", func() {

		BeforeEach(func() {
			args := append(os.Args[:1], []string{
				"--log_level=debug",
				"--log_format=json",
				"--auth_mode=trusted",
				"--auth_mode=jwt",
				"--jwt_secret=opensesame",
				"--api_port=9080",
				"--dns=true",
				"--dns_port=9053",
				"--dns_domain=services.internal",
				"--store=redis",
				"--store_address=redis:6379",
				"--store_password=hunter2",
				"--default_ttl=45s",
				"--eval_interval=10s",
				"--kafka_broker=kafka-0:9092",
				"--kafka_broker=kafka-1:9092",
				"--kafka_client_id=vigil-test",
				"--kafka_sasl=true",
				"--kafka_user=svc",
				"--kafka_password=sekrit",
				"--statsd_host=127.0.0.1:8125",
				"--statsd_prefix=custom",
			}...)

			Expect(newApp().Run(args)).NotTo(HaveOccurred())
		})

		It("uses config values from command line flags", func() {
			Expect(c.LogLevel).To(Equal("debug"))
			Expect(c.LogFormat).To(Equal("json"))
			Expect(c.AuthModes).To(Equal([]string{"trusted", "jwt"}))
			Expect(c.JWTSecret).To(Equal("opensesame"))
			Expect(c.APIPort).To(Equal(9080))
			Expect(c.DNS).To(BeTrue())
			Expect(c.DNSPort).To(Equal(9053))
			Expect(c.DNSDomain).To(Equal("services.internal"))
			Expect(c.Store).To(Equal("redis"))
			Expect(c.StoreAddr).To(Equal("redis:6379"))
			Expect(c.StorePassword).To(Equal("hunter2"))
			Expect(c.DefaultTTL).To(Equal(45 * time.Second))
			Expect(c.EvalInterval).To(Equal(10 * time.Second))
			Expect(c.KafkaBrokers).To(Equal([]string{"kafka-0:9092", "kafka-1:9092"}))
			Expect(c.KafkaClientID).To(Equal("vigil-test"))
			Expect(c.KafkaSASL).To(BeTrue())
			Expect(c.KafkaUser).To(Equal("svc"))
			Expect(c.KafkaPassword).To(Equal("sekrit"))
			Expect(c.StatsdHost).To(Equal("127.0.0.1:8125"))
			Expect(c.StatsdPrefix).To(Equal("custom"))
		})

		It("passes validation", func() {
			Expect(c.Validate()).NotTo(HaveOccurred())
		})
	})

	Context("config overridden with environment variables", func() {

		BeforeEach(func() {
			os.Setenv("VIGIL_LOG_LEVEL", "debug")
			os.Setenv("VIGIL_AUTH_MODE", "trusted,jwt")
			os.Setenv("VIGIL_JWT_SECRET", "opensesame")
			os.Setenv("VIGIL_API_PORT", "9080")
			os.Setenv("VIGIL_DNS", "true")
			os.Setenv("VIGIL_DNS_DOMAIN", "services.internal")
			os.Setenv("VIGIL_STORE", "redis")
			os.Setenv("VIGIL_STORE_ADDRESS", "redis:6379")
			os.Setenv("VIGIL_DEFAULT_TTL", "45s")
			os.Setenv("VIGIL_KAFKA_BROKER", "kafka-0:9092,kafka-1:9092")

			Expect(newApp().Run(os.Args[:1])).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.Unsetenv("VIGIL_LOG_LEVEL")
			os.Unsetenv("VIGIL_AUTH_MODE")
			os.Unsetenv("VIGIL_JWT_SECRET")
			os.Unsetenv("VIGIL_API_PORT")
			os.Unsetenv("VIGIL_DNS")
			os.Unsetenv("VIGIL_DNS_DOMAIN")
			os.Unsetenv("VIGIL_STORE")
			os.Unsetenv("VIGIL_STORE_ADDRESS")
			os.Unsetenv("VIGIL_DEFAULT_TTL")
			os.Unsetenv("VIGIL_KAFKA_BROKER")
		})

		It("uses config values from environment variables", func() {
			Expect(c.LogLevel).To(Equal("debug"))
			Expect(c.AuthModes).To(Equal([]string{"trusted", "jwt"}))
			Expect(c.JWTSecret).To(Equal("opensesame"))
			Expect(c.APIPort).To(Equal(9080))
			Expect(c.DNS).To(BeTrue())
			Expect(c.DNSDomain).To(Equal("services.internal"))
			Expect(c.Store).To(Equal("redis"))
			Expect(c.StoreAddr).To(Equal("redis:6379"))
			Expect(c.DefaultTTL).To(Equal(45 * time.Second))
			Expect(c.KafkaBrokers).To(Equal([]string{"kafka-0:9092", "kafka-1:9092"}))
		})

		It("keeps defaults for values the environment leaves alone", func() {
			Expect(c.LogFormat).To(Equal(DefaultValues.LogFormat))
			Expect(c.DNSPort).To(Equal(DefaultValues.DNSPort))
			Expect(c.EvalInterval).To(Equal(DefaultValues.EvalInterval))
		})
	})

	Context("config overridden with configuration file", func() {

		configFile := fmt.Sprintf("%s/%s", os.TempDir(), "vigil-config.yaml")

		configYaml := `
log_level: debug
log_format: json

auth_mode:
  - trusted
  - jwt
jwt_secret: opensesame

api_port: 9080

dns: true
dns_port: 9053
dns_domain: services.internal

store: redis
store_address: redis:6379
store_password: hunter2

default_ttl: 45s
eval_interval: 10s

kafka_broker:
  - kafka-0:9092
  - kafka-1:9092
kafka_client_id: vigil-test

statsd_host: 127.0.0.1:8125
statsd_prefix: custom
`

		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte(configYaml), 0666)).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.Remove(configFile)
		})

		It("uses config values from configuration file", func() {
			args := append(os.Args[:1], "--config="+configFile)
			Expect(newApp().Run(args)).NotTo(HaveOccurred())

			Expect(c.LogLevel).To(Equal("debug"))
			Expect(c.LogFormat).To(Equal("json"))
			Expect(c.AuthModes).To(Equal([]string{"trusted", "jwt"}))
			Expect(c.JWTSecret).To(Equal("opensesame"))
			Expect(c.APIPort).To(Equal(9080))
			Expect(c.DNS).To(BeTrue())
			Expect(c.DNSPort).To(Equal(9053))
			Expect(c.DNSDomain).To(Equal("services.internal"))
			Expect(c.Store).To(Equal("redis"))
			Expect(c.StoreAddr).To(Equal("redis:6379"))
			Expect(c.StorePassword).To(Equal("hunter2"))
			Expect(c.DefaultTTL).To(Equal(45 * time.Second))
			Expect(c.EvalInterval).To(Equal(10 * time.Second))
			Expect(c.KafkaBrokers).To(Equal([]string{"kafka-0:9092", "kafka-1:9092"}))
			Expect(c.KafkaClientID).To(Equal("vigil-test"))
			Expect(c.StatsdHost).To(Equal("127.0.0.1:8125"))
			Expect(c.StatsdPrefix).To(Equal("custom"))
		})

		It("gives commandline flags precedence over the configuration file", func() {
			args := append(os.Args[:1], "--config="+configFile, "--api_port=7070")
			Expect(newApp().Run(args)).NotTo(HaveOccurred())

			Expect(c.APIPort).To(Equal(7070))
			Expect(c.LogLevel).To(Equal("debug"))
		})
	})

	Context("config validation", func() {

		BeforeEach(func() {
			values := DefaultValues
			c = &values
		})

		It("accepts a valid config", func() {
			Expect(c.Validate()).NotTo(HaveOccurred())
		})

		It("rejects an out-of-range API port", func() {
			c.APIPort = 0
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("rejects an unrecognized store", func() {
			c.Store = "etcd"
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("requires an address for the redis store", func() {
			c.Store = store.Redis
			Expect(c.Validate()).To(HaveOccurred())

			c.StoreAddr = "redis:6379"
			Expect(c.Validate()).NotTo(HaveOccurred())
		})

		It("rejects an unrecognized authentication mode", func() {
			c.AuthModes = []string{"basic"}
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("requires a secret for JWT authentication", func() {
			c.AuthModes = []string{JWTAuthMode}
			Expect(c.Validate()).To(HaveOccurred())

			c.JWTSecret = "opensesame"
			Expect(c.Validate()).NotTo(HaveOccurred())
		})

		It("rejects an excessively large heartbeat TTL", func() {
			c.DefaultTTL = 48 * time.Hour
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("rejects an out-of-range DNS port", func() {
			c.DNS = true
			c.DNSPort = 70053
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("rejects an invalid DNS domain", func() {
			c.DNS = true
			c.DNSDomain = "in..valid"
			Expect(c.Validate()).To(HaveOccurred())
		})

		It("ignores DNS settings while the DNS server is disabled", func() {
			c.DNS = false
			c.DNSPort = 0
			Expect(c.Validate()).NotTo(HaveOccurred())
		})

		It("requires credentials for Kafka SASL", func() {
			c.KafkaSASL = true
			Expect(c.Validate()).To(HaveOccurred())

			c.KafkaUser = "svc"
			c.KafkaPassword = "sekrit"
			Expect(c.Validate()).NotTo(HaveOccurred())
		})
	})
})
