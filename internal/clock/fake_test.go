package clock

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fake", func() {
	var (
		f     *Fake
		start time.Time
		calls []string
	)
	BeforeEach(func() {
		f = NewFake(time.Time{})
		start = f.Now()
		calls = nil
	})
	Record := func(name string) func() {
		return func() { calls = append(calls, name) }
	}

	It("does not move without advance", func() {
		f.Schedule(time.Second, Record("a"))
		Expect(f.Now()).To(Equal(start))
		Expect(calls).To(BeEmpty())
		Expect(f.Pending()).To(Equal(1))
	})

	It("calls due actions in due order", func() {
		f.Schedule(3*time.Second, Record("c"))
		f.Schedule(time.Second, Record("a"))
		f.Schedule(2*time.Second, Record("b"))
		f.Advance(2 * time.Second)
		Expect(calls).To(Equal([]string{"a", "b"}))
		Expect(f.Now()).To(Equal(start.Add(2 * time.Second)))
		f.Advance(time.Second)
		Expect(calls).To(Equal([]string{"a", "b", "c"}))
		Expect(f.Pending()).To(BeZero())
	})

	It("calls rescheduled actions that became due", func() {
		var tick func()
		tick = func() {
			calls = append(calls, "tick")
			f.Schedule(time.Second, tick)
		}
		f.Schedule(time.Second, tick)
		f.Advance(3 * time.Second)
		Expect(calls).To(HaveLen(3))
		Expect(f.Pending()).To(Equal(1))
	})

	It("cancel", func() {
		c := f.Schedule(time.Second, Record("a"))
		Expect(c.Cancel()).To(BeTrue())
		Expect(c.Cancel()).To(BeFalse())
		f.Advance(time.Minute)
		Expect(calls).To(BeEmpty())
	})
})
