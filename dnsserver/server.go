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

// Package dnsserver resolves registered services over DNS. A and SRV
// queries for <service>.<domain> are answered from the registry's healthy
// instance set, so resolution and health gating stay consistent with the
// HTTP discovery API.
package dnsserver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/registry/balancer"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "DNS"

// DefaultDomain is the DNS zone served when no domain is configured.
const DefaultDomain = "vigil."

// Discovery is the resolution surface the DNS server answers from.
// *registry.Registry implements it.
type Discovery interface {
	GetHealthyInstances(serviceID string) ([]*registry.ServiceInstance, error)
	ListInstances() []*registry.ServiceInstance
}

// Config represents the DNS server configuration.
type Config struct {

	// Discovery provides the instances to resolve. Required.
	Discovery Discovery

	// Port is the UDP port to listen on.
	Port uint16

	// Domain is the DNS zone served. Queries outside of it are refused.
	// Defaults to DefaultDomain.
	Domain string
}

// Server is a DNS server resolving service names to healthy instances.
type Server struct {
	config    Config
	dnsServer *dns.Server
	logger    *log.Entry

	rotations map[string]balancer.Balancer
	mutex     sync.Mutex
}

// NewServer creates a new DNS server with the given configuration.
func NewServer(config Config) (*Server, error) {
	if err := validate(&config); err != nil {
		return nil, err
	}

	s := &Server{
		config:    config,
		logger:    logging.GetLogger(module),
		rotations: make(map[string]balancer.Balancer),
	}

	// The mux is bound at the root so that queries outside the served
	// domain reach the handler and can be answered with REFUSED.
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleRequest)

	s.dnsServer = &dns.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Net:     "udp",
		Handler: mux,
	}

	return s, nil
}

// ListenAndServe starts the DNS server. It blocks until the server is
// shut down or fails.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("Starting DNS server on port %d for domain %s", s.config.Port, s.config.Domain)
	err := s.dnsServer.ListenAndServe()
	if err != nil {
		s.logger.WithError(err).Error("DNS server failed")
	}
	return err
}

// Shutdown stops the DNS server.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down DNS server")
	err := s.dnsServer.Shutdown()
	if err != nil {
		s.logger.WithError(err).Error("Error shutting down DNS server")
	}
	return err
}

func (s *Server) handleRequest(w dns.ResponseWriter, request *dns.Msg) {
	response := new(dns.Msg)
	response.SetReply(request)
	response.Authoritative = true
	response.RecursionAvailable = false

	for i, question := range request.Question {
		if err := s.handleQuestion(question, request, response); err != nil {
			s.logger.WithError(err).Debugf("Error handling DNS question %d: %s", i, question.String())
			break
		}
	}

	// Shed answers that do not fit the client's datagram size.
	size := dns.MinMsgSize
	if opt := request.IsEdns0(); opt != nil {
		size = int(opt.UDPSize())
	}
	response.Truncate(size)

	if err := w.WriteMsg(response); err != nil {
		s.logger.WithError(err).Error("Error writing DNS response")
	}
}

func (s *Server) handleQuestion(question dns.Question, request, response *dns.Msg) error {
	if question.Qclass != dns.ClassINET {
		response.SetRcode(request, dns.RcodeServerFailure)
		return fmt.Errorf("unsupported DNS question class: %v", dns.Class(question.Qclass).String())
	}

	switch question.Qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeSRV:
	default:
		response.SetRcode(request, dns.RcodeServerFailure)
		return fmt.Errorf("unsupported DNS question type: %v", dns.Type(question.Qtype).String())
	}

	instances, err := s.resolveQuestion(question, request, response)
	if err != nil {
		return err
	}
	return s.appendRecords(question, request, response, instances)
}

// resolveQuestion maps a question name to registry instances.
//
// Query format, relative to the served domain:
//
//	[tag.]*<service>.<domain>        A / AAAA / SRV
//	_<service>._tcp|_udp.<domain>    SRV
//	<instance_id>.instance.<domain>  A / AAAA
func (s *Server) resolveQuestion(question dns.Question, request, response *dns.Msg) ([]*registry.ServiceInstance, error) {
	if _, valid := dns.IsDomainName(question.Name); !valid {
		response.SetRcode(request, dns.RcodeFormatError)
		return nil, fmt.Errorf("invalid domain name %s", question.Name)
	}

	if !dns.IsSubDomain(s.config.Domain, question.Name) {
		response.SetRcode(request, dns.RcodeRefused)
		return nil, fmt.Errorf("name %s is outside of the served domain %s", question.Name, s.config.Domain)
	}

	labels := dns.SplitDomainName(question.Name)
	relative := labels[:len(labels)-dns.CountLabel(s.config.Domain)]
	if len(relative) == 0 {
		response.SetRcode(request, dns.RcodeNameError)
		return nil, fmt.Errorf("no service name included in %s", question.Name)
	}

	if len(relative) == 2 && relative[1] == "instance" &&
		(question.Qtype == dns.TypeA || question.Qtype == dns.TypeAAAA) {
		return s.instancesForInstanceQuery(relative[0], request, response)
	}

	if len(relative) == 2 && question.Qtype == dns.TypeSRV &&
		strings.HasPrefix(relative[0], "_") && strings.HasPrefix(relative[1], "_") {
		proto := relative[1][1:]
		if proto != "tcp" && proto != "udp" {
			response.SetRcode(request, dns.RcodeFormatError)
			return nil, fmt.Errorf("unsupported protocol label _%s in %s", proto, question.Name)
		}
		return s.instancesForServiceQuery(relative[0][1:], nil, request, response)
	}

	service := relative[len(relative)-1]
	tags := relative[:len(relative)-1]
	return s.instancesForServiceQuery(service, tags, request, response)
}

func (s *Server) instancesForServiceQuery(service string, tags []string, request, response *dns.Msg) ([]*registry.ServiceInstance, error) {
	instances, err := s.config.Discovery.GetHealthyInstances(service)
	if err != nil {
		if fault.IsNotFound(err) {
			response.SetRcode(request, dns.RcodeNameError)
		} else {
			response.SetRcode(request, dns.RcodeServerFailure)
		}
		return nil, err
	}

	if len(tags) > 0 {
		k := 0
		for _, si := range instances {
			if hasTags(si, tags) {
				instances[k] = si
				k++
			}
		}
		instances = instances[:k]
	}
	return s.rotate(service, instances), nil
}

// rotate reorders the answer set cyclically so successive queries for the
// same service lead with a different instance. Clients that take the first
// answer then spread across the fleet.
func (s *Server) rotate(service string, instances []*registry.ServiceInstance) []*registry.ServiceInstance {
	if len(instances) < 2 {
		return instances
	}

	s.mutex.Lock()
	rotation, ok := s.rotations[service]
	if !ok {
		var err error
		rotation, err = balancer.New(balancer.RoundRobin)
		if err != nil {
			s.mutex.Unlock()
			return instances
		}
		s.rotations[service] = rotation
	}
	s.mutex.Unlock()

	head, err := rotation.Next(instances, "")
	if err != nil {
		return instances
	}
	for i, si := range instances {
		if si.ID == head.ID {
			rotated := make([]*registry.ServiceInstance, 0, len(instances))
			rotated = append(rotated, instances[i:]...)
			return append(rotated, instances[:i]...)
		}
	}
	return instances
}

// instancesForInstanceQuery resolves the A/AAAA targets handed out by SRV
// answers. The scan is across all instances regardless of health, so that
// glue stays resolvable while an instance degrades.
func (s *Server) instancesForInstanceQuery(instanceID string, request, response *dns.Msg) ([]*registry.ServiceInstance, error) {
	for _, si := range s.config.Discovery.ListInstances() {
		if si.ID == instanceID {
			return []*registry.ServiceInstance{si}, nil
		}
	}
	response.SetRcode(request, dns.RcodeNameError)
	return nil, fmt.Errorf("no instance with ID %s", instanceID)
}

func (s *Server) appendRecords(question dns.Question, request, response *dns.Msg, instances []*registry.ServiceInstance) error {
	matched := 0
	for _, si := range instances {
		ip, port, err := splitInstanceAddress(si.Address)
		if err != nil {
			continue
		}
		matched++

		switch {
		case question.Qtype == dns.TypeSRV:
			target := fmt.Sprintf("%s.instance.%s", si.ID, s.config.Domain)
			response.Answer = append(response.Answer, &dns.SRV{
				Hdr: dns.RR_Header{
					Name:   question.Name,
					Rrtype: dns.TypeSRV,
					Class:  dns.ClassINET,
					Ttl:    0,
				},
				Priority: 1,
				Weight:   1,
				Port:     port,
				Target:   target,
			})
			if ip.To4() != nil {
				response.Extra = append(response.Extra, aRecord(target, ip))
			} else if ip.To16() != nil {
				response.Extra = append(response.Extra, aaaaRecord(target, ip))
			}

		case question.Qtype == dns.TypeA && ip.To4() != nil:
			response.Answer = append(response.Answer, aRecord(question.Name, ip))

		case question.Qtype == dns.TypeAAAA && ip.To4() == nil && ip.To16() != nil:
			response.Answer = append(response.Answer, aaaaRecord(question.Name, ip))
		}
	}

	if matched == 0 {
		response.SetRcode(request, dns.RcodeNameError)
		return fmt.Errorf("no records for %s", question.Name)
	}
	response.SetRcode(request, dns.RcodeSuccess)
	return nil
}

// splitInstanceAddress parses an instance address in "host:port" or bare
// "host" form. The host must be a literal IP.
func splitInstanceAddress(address string) (net.IP, uint16, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		portStr = "0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("address %s is not a literal IP", address)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, 0, err
	}
	return ip, uint16(port), nil
}

func hasTags(si *registry.ServiceInstance, tags []string) bool {
	for _, wanted := range tags {
		found := false
		for _, tag := range si.Tags {
			if tag == wanted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func aRecord(name string, ip net.IP) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    0,
		},
		A: ip,
	}
}

func aaaaRecord(name string, ip net.IP) *dns.AAAA {
	return &dns.AAAA{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeAAAA,
			Class:  dns.ClassINET,
			Ttl:    0,
		},
		AAAA: ip,
	}
}

func validate(config *Config) error {
	if config.Discovery == nil {
		return fault.New(fault.Validation, "discovery source is nil")
	}
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	config.Domain = dns.Fqdn(config.Domain)
	return nil
}
