package autoscale

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/amalgam8/vigil/pkg/fault"
)

func validPolicy() *Policy {
	return &Policy{
		ServiceID:      "checkout",
		MinInstances:   1,
		MaxInstances:   5,
		CooldownPeriod: time.Minute,
		Rules: []ScalingRule{
			{
				Metric:            "cpu",
				Threshold:         80,
				Operator:          GreaterThan,
				Direction:         ScaleUp,
				Amount:            1,
				EvaluationPeriods: 3,
			},
		},
	}
}

var _ = Describe("Policy Validation", func() {

	var v Validator

	BeforeEach(func() {
		var err error
		v, err = NewValidator()
		Expect(err).ToNot(HaveOccurred())
	})

	It("Accepts a well-formed policy", func() {
		Expect(v.Validate(validPolicy())).To(Succeed())
	})

	It("Rejects a nil policy", func() {
		err := v.Validate(nil)
		Expect(err).To(HaveOccurred())
		Expect(fault.IsValidation(err)).To(BeTrue())
	})

	It("Rejects a policy without a service", func() {
		policy := validPolicy()
		policy.ServiceID = ""
		Expect(fault.IsValidation(v.Validate(policy))).To(BeTrue())
	})

	It("Rejects a policy without rules", func() {
		policy := validPolicy()
		policy.Rules = nil
		Expect(fault.IsValidation(v.Validate(policy))).To(BeTrue())
	})

	It("Rejects an unknown operator", func() {
		policy := validPolicy()
		policy.Rules[0].Operator = "=="
		Expect(fault.IsValidation(v.Validate(policy))).To(BeTrue())
	})

	It("Rejects an unknown direction", func() {
		policy := validPolicy()
		policy.Rules[0].Direction = "SIDEWAYS"
		Expect(fault.IsValidation(v.Validate(policy))).To(BeTrue())
	})

	It("Rejects a non-positive scaling amount", func() {
		policy := validPolicy()
		policy.Rules[0].Amount = 0
		Expect(fault.IsValidation(v.Validate(policy))).To(BeTrue())
	})

	It("Rejects min instances above max instances", func() {
		policy := validPolicy()
		policy.MinInstances = 6
		err := v.Validate(policy)
		Expect(fault.IsValidation(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("exceeds max instances"))
	})

	It("Rejects desired instances outside the bounds", func() {
		policy := validPolicy()
		policy.DesiredInstances = 9
		Expect(fault.IsValidation(v.Validate(policy))).To(BeTrue())
	})

	It("Accepts desired instances within the bounds", func() {
		policy := validPolicy()
		policy.DesiredInstances = 3
		Expect(v.Validate(policy)).To(Succeed())
	})
})
