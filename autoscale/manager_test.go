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

package autoscale

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
)

var _ = Describe("Policy Manager", func() {

	var (
		st  store.Store
		mgr Manager
	)

	BeforeEach(func() {
		var err error
		st, err = store.New(nil)
		Expect(err).ToNot(HaveOccurred())

		mgr, err = NewManager(st, nil)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		st.Close()
	})

	It("Requires a store", func() {
		_, err := NewManager(nil, nil)
		Expect(fault.IsValidation(err)).To(BeTrue())
	})

	Context("Adding a policy", func() {

		It("Assigns an ID and defaults", func() {
			added, err := mgr.AddPolicy(validPolicy())
			Expect(err).ToNot(HaveOccurred())
			Expect(added.ID).ToNot(BeEmpty())
			Expect(added.Status).To(Equal(StatusActive))
			Expect(added.DesiredInstances).To(Equal(added.MinInstances))
		})

		It("Rejects an invalid policy", func() {
			policy := validPolicy()
			policy.Rules = nil
			_, err := mgr.AddPolicy(policy)
			Expect(fault.IsValidation(err)).To(BeTrue())
		})

		It("Rejects a second policy for the same service", func() {
			_, err := mgr.AddPolicy(validPolicy())
			Expect(err).ToNot(HaveOccurred())

			_, err = mgr.AddPolicy(validPolicy())
			Expect(fault.IsValidation(err)).To(BeTrue())

			code, ok := fault.StatusCodeOf(err)
			Expect(ok).To(BeTrue())
			Expect(code).To(Equal(http.StatusConflict))
		})
	})

	Context("Retrieving policies", func() {

		var added *Policy

		BeforeEach(func() {
			var err error
			added, err = mgr.AddPolicy(validPolicy())
			Expect(err).ToNot(HaveOccurred())
		})

		It("Finds a policy by ID", func() {
			stored, err := mgr.GetPolicy(added.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.ServiceID).To(Equal("checkout"))
			Expect(stored.Rules).To(HaveLen(1))
		})

		It("Finds a policy by service", func() {
			stored, err := mgr.GetServicePolicy("checkout")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.ID).To(Equal(added.ID))
		})

		It("Reports unknown IDs", func() {
			_, err := mgr.GetPolicy("no-such-policy")
			Expect(fault.IsNotFound(err)).To(BeTrue())
		})

		It("Reports services without a policy", func() {
			_, err := mgr.GetServicePolicy("no-such-service")
			Expect(fault.IsNotFound(err)).To(BeTrue())
		})

		It("Lists all policies", func() {
			other := validPolicy()
			other.ServiceID = "payments"
			_, err := mgr.AddPolicy(other)
			Expect(err).ToNot(HaveOccurred())

			policies, err := mgr.ListPolicies()
			Expect(err).ToNot(HaveOccurred())
			Expect(policies).To(HaveLen(2))
		})
	})

	Context("Updating a policy", func() {

		var added *Policy

		BeforeEach(func() {
			var err error
			added, err = mgr.AddPolicy(validPolicy())
			Expect(err).ToNot(HaveOccurred())
		})

		It("Replaces the stored policy", func() {
			added.MaxInstances = 8
			added.Rules[0].Threshold = 90
			Expect(mgr.UpdatePolicy(added)).To(Succeed())

			stored, err := mgr.GetPolicy(added.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.MaxInstances).To(Equal(8))
			Expect(stored.Rules[0].Threshold).To(Equal(90.0))
		})

		It("Keeps evaluation state the update leaves unset", func() {
			added.Status = StatusCooldown
			added.LastScalingActivity = time.Now()
			Expect(mgr.UpdatePolicy(added)).To(Succeed())

			update := validPolicy()
			update.ID = added.ID
			update.MaxInstances = 7
			Expect(mgr.UpdatePolicy(update)).To(Succeed())

			stored, err := mgr.GetPolicy(added.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.MaxInstances).To(Equal(7))
			Expect(stored.Status).To(Equal(StatusCooldown))
			Expect(stored.LastScalingActivity.IsZero()).To(BeFalse())
		})

		It("Rejects an update without an ID", func() {
			Expect(fault.IsValidation(mgr.UpdatePolicy(validPolicy()))).To(BeTrue())
		})

		It("Rejects an update for an unknown ID", func() {
			update := validPolicy()
			update.ID = "no-such-policy"
			Expect(fault.IsNotFound(mgr.UpdatePolicy(update))).To(BeTrue())
		})
	})

	Context("Deleting a policy", func() {

		It("Removes the stored policy", func() {
			added, err := mgr.AddPolicy(validPolicy())
			Expect(err).ToNot(HaveOccurred())

			Expect(mgr.DeletePolicy(added.ID)).To(Succeed())

			_, err = mgr.GetPolicy(added.ID)
			Expect(fault.IsNotFound(err)).To(BeTrue())
		})

		It("Reports unknown IDs", func() {
			Expect(fault.IsNotFound(mgr.DeletePolicy("no-such-policy"))).To(BeTrue())
		})
	})
})
