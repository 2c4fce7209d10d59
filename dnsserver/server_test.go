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

package dnsserver

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/suite"

	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
)

type TestSuite struct {
	suite.Suite
	server      *Server
	registry    *registry.Registry
	addr        string
	checkoutIDs []string
}

func (suite *TestSuite) SetupTest() {
	backing, err := store.New(nil)
	suite.Require().NoError(err)

	suite.registry, err = registry.New(backing, nil)
	suite.Require().NoError(err)

	for _, name := range []string{"checkout", "orders", "reviews"} {
		_, err = suite.registry.RegisterService(&registry.ServiceDefinition{Name: name})
		suite.Require().NoError(err)
	}

	suite.checkoutIDs = nil
	for _, si := range []*registry.ServiceInstance{
		{ServiceID: "checkout", Address: "127.0.0.1:8080", Status: registry.InstanceRunning},
		{ServiceID: "checkout", Address: "127.0.0.2:8080", Status: registry.InstanceRunning},
	} {
		registered, err := suite.registry.RegisterInstance(si)
		suite.Require().NoError(err)
		suite.checkoutIDs = append(suite.checkoutIDs, registered.ID)
	}

	// excluded from answers: not RUNNING, and not a literal IP
	_, err = suite.registry.RegisterInstance(&registry.ServiceInstance{
		ServiceID: "checkout", Address: "127.0.0.3:8080", Status: registry.InstanceStarting})
	suite.Require().NoError(err)
	_, err = suite.registry.RegisterInstance(&registry.ServiceInstance{
		ServiceID: "checkout", Address: "node-1:8080", Status: registry.InstanceRunning})
	suite.Require().NoError(err)

	_, err = suite.registry.RegisterInstance(&registry.ServiceInstance{
		ServiceID: "orders", Address: "10.0.0.4:9090", Status: registry.InstanceRunning, Tags: []string{"v2"}})
	suite.Require().NoError(err)
	_, err = suite.registry.RegisterInstance(&registry.ServiceInstance{
		ServiceID: "orders", Address: "10.0.0.5:9090", Status: registry.InstanceRunning})
	suite.Require().NoError(err)

	suite.server, err = NewServer(Config{Discovery: suite.registry})
	suite.Require().NoError(err)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	suite.Require().NoError(err)
	suite.addr = pc.LocalAddr().String()

	started := make(chan struct{})
	suite.server.dnsServer.Addr = ""
	suite.server.dnsServer.PacketConn = pc
	suite.server.dnsServer.NotifyStartedFunc = func() { close(started) }
	go suite.server.dnsServer.ActivateAndServe()
	<-started
}

func (suite *TestSuite) TearDownTest() {
	suite.server.Shutdown()
}

func (suite *TestSuite) exchange(name string, qtype uint16) *dns.Msg {
	c := dns.Client{}
	m := dns.Msg{}
	m.SetQuestion(name, qtype)
	r, _, err := c.Exchange(&m, suite.addr)
	suite.Require().NoError(err)
	return r
}

func (suite *TestSuite) TestServiceAQuery() {
	r := suite.exchange("checkout.vigil.", dns.TypeA)

	suite.Equal(dns.RcodeSuccess, r.Rcode)
	suite.Len(r.Answer, 2, "only running instances with literal IPs should resolve")

	for _, ans := range r.Answer {
		record := ans.(*dns.A)
		suite.EqualValues(0, record.Hdr.Ttl)
		suite.True(record.A.Equal(net.IPv4(127, 0, 0, 1)) || record.A.Equal(net.IPv4(127, 0, 0, 2)))
	}
}

func (suite *TestSuite) TestUnknownService() {
	r := suite.exchange("unknown.vigil.", dns.TypeA)

	suite.Equal(dns.RcodeNameError, r.Rcode)
	suite.Empty(r.Answer)
}

func (suite *TestSuite) TestServiceWithoutHealthyInstances() {
	r := suite.exchange("reviews.vigil.", dns.TypeA)

	suite.Equal(dns.RcodeNameError, r.Rcode)
	suite.Empty(r.Answer)
}

func (suite *TestSuite) TestOutsideDomain() {
	r := suite.exchange("checkout.example.", dns.TypeA)

	suite.Equal(dns.RcodeRefused, r.Rcode)
	suite.Empty(r.Answer)
}

func (suite *TestSuite) TestBareDomain() {
	r := suite.exchange("vigil.", dns.TypeA)

	suite.Equal(dns.RcodeNameError, r.Rcode)
	suite.Empty(r.Answer)
}

func (suite *TestSuite) TestSRVQuery() {
	r := suite.exchange("checkout.vigil.", dns.TypeSRV)

	suite.Equal(dns.RcodeSuccess, r.Rcode)
	suite.Require().Len(r.Answer, 2)

	targets := make(map[string]bool)
	for _, ans := range r.Answer {
		record := ans.(*dns.SRV)
		suite.EqualValues(8080, record.Port)
		suite.EqualValues(0, record.Hdr.Ttl)
		targets[record.Target] = true
	}
	for _, id := range suite.checkoutIDs {
		suite.True(targets[id+".instance.vigil."], "SRV target for instance %s", id)
	}
	suite.Len(r.Extra, 2, "glue A records should accompany SRV answers")

	// the SRV target must itself resolve
	r = suite.exchange(suite.checkoutIDs[0]+".instance.vigil.", dns.TypeA)
	suite.Equal(dns.RcodeSuccess, r.Rcode)
	suite.Require().Len(r.Answer, 1)
	suite.True(r.Answer[0].(*dns.A).A.Equal(net.IPv4(127, 0, 0, 1)))
}

func (suite *TestSuite) TestSRVServiceForm() {
	r := suite.exchange("_checkout._tcp.vigil.", dns.TypeSRV)

	suite.Equal(dns.RcodeSuccess, r.Rcode)
	suite.Len(r.Answer, 2)
}

func (suite *TestSuite) TestTagFilter() {
	r := suite.exchange("v2.orders.vigil.", dns.TypeA)

	suite.Equal(dns.RcodeSuccess, r.Rcode)
	suite.Require().Len(r.Answer, 1)
	suite.True(r.Answer[0].(*dns.A).A.Equal(net.IPv4(10, 0, 0, 4)))

	r = suite.exchange("v3.orders.vigil.", dns.TypeA)
	suite.Equal(dns.RcodeNameError, r.Rcode)
	suite.Empty(r.Answer)
}

func (suite *TestSuite) TestAnswerRotation() {
	lead := func() net.IP {
		r := suite.exchange("checkout.vigil.", dns.TypeA)
		suite.Equal(dns.RcodeSuccess, r.Rcode)
		suite.Require().Len(r.Answer, 2)
		return r.Answer[0].(*dns.A).A
	}

	first, second, third := lead(), lead(), lead()
	suite.False(first.Equal(second), "successive answers should lead with different instances")
	suite.True(first.Equal(third), "rotation should cycle through the fleet")
}

func (suite *TestSuite) TestNilDiscovery() {
	_, err := NewServer(Config{})
	suite.Error(err)
}

func TestTestSuite(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
