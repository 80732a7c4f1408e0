package replay

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/log"
)

var _ = Describe("Combine", func() {
	var (
		live    *manualLive
		history chan cache.Notification
		out     *collector
		c       *Combined
	)
	BeforeEach(func() {
		live = &manualLive{}
		history = make(chan cache.Notification)
		out = &collector{}
		c = Combine(live, ChanHistory(history), out.Deliver)
	})
	AfterEach(func() { c.Close() })
	History := func(ids ...int64) {
		for _, id := range ids {
			history <- note(id)
		}
	}

	It("merges history and live without gaps and duplicates", func() {
		live.Emit(3, 4)
		History(1, 2, 3)
		Eventually(out.IDs).Should(Equal([]int64{1, 2, 3}))
		close(history)
		Eventually(c.Done()).Should(BeClosed())
		Expect(c.Err()).NotTo(HaveOccurred())
		live.Emit(5)
		Expect(out.IDs()).To(Equal([]int64{1, 2, 3, 4, 5}))
		Expect(c.Buffered()).To(Equal(2))
		Expect(c.Last()).To(BeEquivalentTo(5))
	})

	It("forwards nothing live until history completes", func() {
		live.Emit(1, 2, 3)
		Consistently(out.IDs).Should(BeEmpty())
		Expect(c.Done()).NotTo(BeClosed())
		Expect(c.Buffered()).To(Equal(3))
	})

	It("empty history forwards buffered in arrival order", func() {
		live.Emit(7, 8, 9)
		close(history)
		Eventually(c.Done()).Should(BeClosed())
		Expect(out.IDs()).To(Equal([]int64{7, 8, 9}))
	})

	It("drops read markers", func() {
		close(history)
		Eventually(c.Done()).Should(BeClosed())
		live.deliver(cache.Notification{Kind: cache.KindRetrieve, Key: "k"})
		Expect(out.IDs()).To(BeEmpty())
	})

	It("close stops delivery", func() {
		close(history)
		Eventually(c.Done()).Should(BeClosed())
		live.Emit(1)
		c.Close()
		Expect(live.Unsubscribed()).To(BeTrue())
		live.deliver(note(2))
		Expect(out.IDs()).To(Equal([]int64{1}))
	})

	It("close callback is called once", func() {
		var calls int
		c.OnClose(func() {
			Expect(live.Unsubscribed()).To(BeTrue())
			calls++
		})
		c.Close()
		c.Close()
		Expect(calls).To(Equal(1))
	})
})

var _ = Describe("Combine with history", func() {
	It("skips live covered by history sequence", func() {
		live := &manualLive{}
		out := &collector{}
		release := make(chan struct{})
		c := Combine(live, HistoryFunc(func(emit func(cache.Notification)) (int64, error) {
			<-release
			emit(note(1))
			return 4, nil
		}), out.Deliver)
		defer c.Close()
		live.Emit(2, 3, 4, 5)
		close(release)
		Eventually(c.Done()).Should(BeClosed())
		Expect(out.IDs()).To(Equal([]int64{1, 5}))
	})

	It("failed history never forwards live", func() {
		live := &manualLive{}
		out := &collector{}
		fail := errors.New("history failed")
		release := make(chan struct{})
		c := Combine(live, HistoryFunc(func(emit func(cache.Notification)) (int64, error) {
			<-release
			return 0, fail
		}), out.Deliver)
		defer c.Close()
		live.Emit(1)
		close(release)
		Eventually(c.Done()).Should(BeClosed())
		Expect(c.Err()).To(Equal(fail))
		Expect(live.Unsubscribed()).To(BeTrue())
		Expect(out.IDs()).To(BeEmpty())
	})
})

var _ = Describe("Combine with store", func() {
	It("late subscriber reproduces store", func() {
		s := cache.NewStore(log.NewLogger(log.WarnLevel, GinkgoWriter), clock.NewFake(time.Time{}), cache.Config{})
		defer s.Dispose()
		keys := []string{"a", "b", "c", "d", "e"}
		Write := func(i int) {
			key := keys[i%len(keys)]
			switch i % 4 {
			case 0, 1:
				s.Store(key, 0, []byte{byte(i)}, time.Time{})
			case 2:
				s.Remove(key)
			case 3:
				s.Append(key, 0, time.Time{}, []byte{byte(i)})
			}
		}
		for i := 0; i < 100; i++ {
			Write(i)
		}

		const writers = 4
		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer GinkgoRecover()
				defer wg.Done()
				<-start
				for i := 0; i < 500; i++ {
					Write(w*1000 + i)
				}
			}(w)
		}

		var lock sync.Mutex
		var got []cache.Notification
		close(start)
		c := Combine(s, StateHistory(s.CurrentState), func(n cache.Notification) {
			lock.Lock()
			got = append(got, n)
			lock.Unlock()
		})
		defer c.Close()
		wg.Wait()
		Eventually(c.Done()).Should(BeClosed())

		lock.Lock()
		defer lock.Unlock()
		var last int64
		model := map[string]string{}
		for _, n := range got {
			Expect(n.EventID).To(BeNumerically(">", last))
			last = n.EventID
			switch n.Kind {
			case cache.KindStore:
				model[n.Key] = string(n.Data)
			case cache.KindRemove:
				delete(model, n.Key)
			}
		}
		actual := map[string]string{}
		for k, e := range s.CurrentState().Entries {
			actual[k] = string(e.Data)
		}
		Expect(model).To(Equal(actual))
	})
})
