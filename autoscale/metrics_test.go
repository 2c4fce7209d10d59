package autoscale

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
)

var _ = Describe("Store Metrics", func() {

	var (
		st     store.Store
		source *StoreMetrics
	)

	BeforeEach(func() {
		var err error
		st, err = store.New(nil)
		Expect(err).ToNot(HaveOccurred())
		source = NewStoreMetrics(st, 0)
	})

	AfterEach(func() {
		st.Close()
	})

	It("Requires a service and a metric name", func() {
		Expect(fault.IsValidation(source.Record("", "cpu", 1))).To(BeTrue())
		Expect(fault.IsValidation(source.Record("checkout", "", 1))).To(BeTrue())
	})

	It("Rejects invalid window requests", func() {
		_, err := source.Windows("checkout", "cpu", 0, time.Second)
		Expect(fault.IsValidation(err)).To(BeTrue())

		_, err = source.Windows("checkout", "cpu", 3, 0)
		Expect(fault.IsValidation(err)).To(BeTrue())
	})

	It("Averages samples within the current window", func() {
		Expect(source.Record("checkout", "cpu", 60)).To(Succeed())
		Expect(source.Record("checkout", "cpu", 80)).To(Succeed())
		Expect(source.Record("checkout", "cpu", 100)).To(Succeed())

		windows, err := source.Windows("checkout", "cpu", 1, time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(windows).To(HaveLen(1))
		Expect(windows[0].Count).To(Equal(3))
		Expect(windows[0].Mean).To(BeNumerically("~", 80, 0.001))
	})

	It("Buckets samples by age, oldest window first", func() {
		Expect(source.Record("checkout", "cpu", 30)).To(Succeed())
		time.Sleep(250 * time.Millisecond)
		Expect(source.Record("checkout", "cpu", 90)).To(Succeed())

		windows, err := source.Windows("checkout", "cpu", 2, 200*time.Millisecond)
		Expect(err).ToNot(HaveOccurred())
		Expect(windows).To(HaveLen(2))
		Expect(windows[0].Count).To(Equal(1))
		Expect(windows[0].Mean).To(BeNumerically("~", 30, 0.001))
		Expect(windows[1].Count).To(Equal(1))
		Expect(windows[1].Mean).To(BeNumerically("~", 90, 0.001))
	})

	It("Reports empty windows with a zero count", func() {
		windows, err := source.Windows("checkout", "cpu", 3, time.Second)
		Expect(err).ToNot(HaveOccurred())
		Expect(windows).To(HaveLen(3))
		for _, w := range windows {
			Expect(w.Count).To(BeZero())
		}
	})

	It("Keeps services and metrics apart", func() {
		Expect(source.Record("checkout", "cpu", 10)).To(Succeed())
		Expect(source.Record("checkout", "latency", 250)).To(Succeed())
		Expect(source.Record("payments", "cpu", 70)).To(Succeed())

		windows, err := source.Windows("checkout", "cpu", 1, time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(windows[0].Count).To(Equal(1))
		Expect(windows[0].Mean).To(BeNumerically("~", 10, 0.001))
	})

	It("Ignores samples older than the requested span", func() {
		Expect(source.Record("checkout", "cpu", 50)).To(Succeed())
		time.Sleep(120 * time.Millisecond)

		windows, err := source.Windows("checkout", "cpu", 1, 100*time.Millisecond)
		Expect(err).ToNot(HaveOccurred())
		Expect(windows[0].Count).To(BeZero())
	})
})
