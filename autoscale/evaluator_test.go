package autoscale

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/amalgam8/vigil/store"
)

var _ = Describe("Policy Evaluator", func() {

	var (
		st     store.Store
		mgr    Manager
		source *scriptedMetrics
		fleet  *staticFleet
		scaler *countingScaler
		ev     *Evaluator
	)

	newEvaluator := func() *Evaluator {
		evaluator, err := NewEvaluator(EvaluatorConfig{
			Manager:  mgr,
			Metrics:  source,
			Registry: fleet,
			Store:    st,
			Scaler:   scaler,
			Interval: 10 * time.Millisecond,
			LockTTL:  time.Second,
		})
		Expect(err).ToNot(HaveOccurred())
		return evaluator
	}

	addPolicy := func(policy *Policy) *Policy {
		added, err := mgr.AddPolicy(policy)
		Expect(err).ToNot(HaveOccurred())
		return added
	}

	storedPolicy := func(id string) *Policy {
		stored, err := mgr.GetPolicy(id)
		Expect(err).ToNot(HaveOccurred())
		return stored
	}

	BeforeEach(func() {
		var err error
		st, err = store.New(nil)
		Expect(err).ToNot(HaveOccurred())

		mgr, err = NewManager(st, nil)
		Expect(err).ToNot(HaveOccurred())

		source = &scriptedMetrics{}
		fleet = &staticFleet{size: 2}
		scaler = &countingScaler{}
		ev = newEvaluator()
	})

	AfterEach(func() {
		ev.Stop()
		st.Close()
	})

	It("Requires its collaborators", func() {
		_, err := NewEvaluator(EvaluatorConfig{Metrics: source, Registry: fleet, Store: st})
		Expect(err).To(HaveOccurred())

		_, err = NewEvaluator(EvaluatorConfig{Manager: mgr, Registry: fleet, Store: st})
		Expect(err).To(HaveOccurred())

		_, err = NewEvaluator(EvaluatorConfig{Manager: mgr, Metrics: source, Store: st})
		Expect(err).To(HaveOccurred())

		_, err = NewEvaluator(EvaluatorConfig{Manager: mgr, Metrics: source, Registry: fleet})
		Expect(err).To(HaveOccurred())
	})

	Context("With a scale-up rule over two evaluation periods", func() {

		var policy *Policy

		BeforeEach(func() {
			p := validPolicy()
			p.CooldownPeriod = 200 * time.Millisecond
			p.Rules[0].EvaluationPeriods = 2
			policy = addPolicy(p)
		})

		It("Scales up when every window satisfies the rule", func() {
			source.script(Window{Mean: 85, Count: 4}, Window{Mean: 92, Count: 3})

			ev.Evaluate()

			Expect(scaler.count()).To(Equal(1))
			Expect(scaler.last()).To(Equal(scaleCall{serviceID: "checkout", current: 2, desired: 3}))

			stored := storedPolicy(policy.ID)
			Expect(stored.DesiredInstances).To(Equal(3))
			Expect(stored.Status).To(Equal(StatusCooldown))
			Expect(stored.LastScalingActivity.IsZero()).To(BeFalse())
		})

		It("Does not fire when only the latest window satisfies the rule", func() {
			source.script(Window{Mean: 40, Count: 2}, Window{Mean: 92, Count: 3})

			ev.Evaluate()

			Expect(scaler.count()).To(BeZero())
			Expect(storedPolicy(policy.ID).Status).To(Equal(StatusActive))
		})

		It("Does not fire across an empty window", func() {
			source.script(Window{}, Window{Mean: 92, Count: 3})

			ev.Evaluate()

			Expect(scaler.count()).To(BeZero())
		})

		It("Honors the cooldown between scaling actions", func() {
			source.script(Window{Mean: 85, Count: 1}, Window{Mean: 92, Count: 1})

			ev.Evaluate()
			ev.Evaluate()
			Expect(scaler.count()).To(Equal(1))

			time.Sleep(250 * time.Millisecond)
			ev.Evaluate()
			Expect(scaler.count()).To(Equal(2))
		})

		It("Returns the policy to ACTIVE once the cooldown ends", func() {
			source.script(Window{Mean: 85, Count: 1}, Window{Mean: 92, Count: 1})
			ev.Evaluate()
			Expect(storedPolicy(policy.ID).Status).To(Equal(StatusCooldown))

			source.script(Window{Mean: 10, Count: 1}, Window{Mean: 12, Count: 1})
			time.Sleep(250 * time.Millisecond)
			ev.Evaluate()

			Expect(storedPolicy(policy.ID).Status).To(Equal(StatusActive))
			Expect(scaler.count()).To(Equal(1))
		})

		It("Skips the tick while another holder owns the scaling lock", func() {
			source.script(Window{Mean: 85, Count: 1}, Window{Mean: 92, Count: 1})

			lock, err := st.AcquireLock(lockKey("checkout"), time.Second)
			Expect(err).ToNot(HaveOccurred())

			ev.Evaluate()
			Expect(scaler.count()).To(BeZero())
			Expect(storedPolicy(policy.ID).Status).To(Equal(StatusActive))

			_, err = st.ReleaseLock(lock)
			Expect(err).ToNot(HaveOccurred())

			ev.Evaluate()
			Expect(scaler.count()).To(Equal(1))
		})

		It("Restores the policy when the scaler fails", func() {
			source.script(Window{Mean: 85, Count: 1}, Window{Mean: 92, Count: 1})
			scaler.fail(errors.New("actuator unreachable"))

			ev.Evaluate()

			stored := storedPolicy(policy.ID)
			Expect(stored.Status).To(Equal(StatusActive))
			Expect(stored.DesiredInstances).To(Equal(1))
			Expect(stored.LastScalingActivity.IsZero()).To(BeTrue())

			scaler.fail(nil)
			ev.Evaluate()
			Expect(scaler.count()).To(Equal(1))
			Expect(storedPolicy(policy.ID).Status).To(Equal(StatusCooldown))
		})

		It("Publishes applied decisions as scaling activity", func() {
			var mutex sync.Mutex
			var activities []Activity
			subscription, err := st.Subscribe(store.ScalingChannel, func(msg store.Message) {
				activity := Activity{}
				if err := json.Unmarshal(msg.Payload, &activity); err != nil {
					return
				}
				mutex.Lock()
				activities = append(activities, activity)
				mutex.Unlock()
			})
			Expect(err).ToNot(HaveOccurred())
			defer subscription.Unsubscribe()

			source.script(Window{Mean: 85, Count: 1}, Window{Mean: 92, Count: 1})
			ev.Evaluate()

			Eventually(func() int {
				mutex.Lock()
				defer mutex.Unlock()
				return len(activities)
			}).Should(Equal(1))

			mutex.Lock()
			activity := activities[0]
			mutex.Unlock()
			Expect(activity.PolicyID).To(Equal(policy.ID))
			Expect(activity.ServiceID).To(Equal("checkout"))
			Expect(activity.Metric).To(Equal("cpu"))
			Expect(activity.Direction).To(Equal(ScaleUp))
			Expect(activity.PreviousDesired).To(Equal(1))
			Expect(activity.Desired).To(Equal(3))
			Expect(activity.Instances).To(Equal(2))
		})
	})

	It("Clamps the desired fleet size to the policy bounds", func() {
		p := validPolicy()
		p.Rules[0].Amount = 10
		p.Rules[0].EvaluationPeriods = 1
		policy := addPolicy(p)

		source.script(Window{Mean: 95, Count: 1})
		ev.Evaluate()

		Expect(scaler.count()).To(Equal(1))
		Expect(scaler.last().desired).To(Equal(5))
		Expect(storedPolicy(policy.ID).DesiredInstances).To(Equal(5))
	})

	It("Scales down to no less than the minimum", func() {
		p := validPolicy()
		p.Rules[0] = ScalingRule{
			Metric:            "cpu",
			Threshold:         20,
			Operator:          LessThan,
			Direction:         ScaleDown,
			Amount:            10,
			EvaluationPeriods: 1,
		}
		policy := addPolicy(p)
		fleet.resize(4)

		source.script(Window{Mean: 5, Count: 2})
		ev.Evaluate()

		Expect(scaler.count()).To(Equal(1))
		Expect(scaler.last()).To(Equal(scaleCall{serviceID: "checkout", current: 4, desired: 1}))
		Expect(storedPolicy(policy.ID).DesiredInstances).To(Equal(1))
	})

	It("Never applies twice within one cooldown window across evaluators", func() {
		p := validPolicy()
		p.CooldownPeriod = time.Minute
		p.Rules[0].EvaluationPeriods = 1
		addPolicy(p)

		source.script(Window{Mean: 95, Count: 1})
		other := newEvaluator()

		var wg sync.WaitGroup
		for _, evaluator := range []*Evaluator{ev, other} {
			wg.Add(1)
			go func(e *Evaluator) {
				defer wg.Done()
				e.Evaluate()
			}(evaluator)
		}
		wg.Wait()

		Expect(scaler.count()).To(Equal(1))
	})

	It("Evaluates periodically between Start and Stop", func() {
		p := validPolicy()
		p.CooldownPeriod = 0
		p.Rules[0].EvaluationPeriods = 1
		addPolicy(p)
		source.script(Window{Mean: 95, Count: 1})

		Expect(ev.Start()).To(Succeed())
		Eventually(func() int { return scaler.count() }).Should(BeNumerically(">=", 2))

		ev.Stop()
		applied := scaler.count()
		time.Sleep(50 * time.Millisecond)
		Expect(scaler.count()).To(Equal(applied))
	})
})
