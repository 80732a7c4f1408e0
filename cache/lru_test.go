package cache

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/nemcache/internal/clock"
)

var _ = Describe("queue", func() {
	var q *queue
	BeforeEach(func() { q = newQueue() })
	AfterEach(func() { q.ExpectInvariantsOk() })

	It("init", func() {
		Expect(q.empty()).To(BeTrue())
		Expect(q.keys()).To(BeEmpty())
	})

	It("push, move and remove", func() {
		a, b, c := &node{key: "a"}, &node{key: "b"}, &node{key: "c"}
		q.push(a)
		q.push(b)
		q.push(c)
		Expect(q.keys()).To(Equal([]string{"a", "b", "c"}))
		q.moveToTail(a)
		Expect(q.keys()).To(Equal([]string{"b", "c", "a"}))
		q.moveToTail(a)
		Expect(q.keys()).To(Equal([]string{"b", "c", "a"}))
		q.remove(c)
		Expect(q.keys()).To(Equal([]string{"b", "a"}))
		Expect(q.head()).To(BeIdenticalTo(b))
		Expect(q.tail()).To(BeIdenticalTo(a))
	})
})

var _ = Describe("LRU", func() {
	var (
		clk *clock.Fake
		s   *Store
		l   *lruStrategy
	)
	BeforeEach(func() {
		clk = clock.NewFake(time.Time{})
		s = newTestStore(clk, Config{Capacity: 10, Eviction: EvictLRU})
		l = s.strategy.(*lruStrategy)
	})
	AfterEach(func() {
		l.ExpectInvariantsOk()
		ExpectUsedConsistent(s)
		s.Dispose()
	})
	Keys := func() []string {
		l.lock.Lock()
		defer l.lock.Unlock()
		return l.queue.keys()
	}

	It("evicts least recently added", func() {
		for _, key := range []string{"a", "b", "c"} {
			ok, err := s.Add(key, 0, never, bytesOf(5))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}
		Expect(liveData(s)).To(HaveLen(2))
		Expect(liveData(s)).To(HaveKey("b"))
		Expect(liveData(s)).To(HaveKey("c"))
		Expect(Keys()).To(Equal([]string{"b", "c"}))
	})

	It("retrieve refreshes recency", func() {
		s.Store("a", 0, bytesOf(5), never)
		s.Store("b", 0, bytesOf(5), never)
		s.Retrieve("a")
		s.Store("c", 0, bytesOf(5), never)
		Expect(liveData(s)).To(HaveKey("a"))
		Expect(liveData(s)).To(HaveKey("c"))
		Expect(liveData(s)).NotTo(HaveKey("b"))
	})

	It("touch refreshes recency", func() {
		s.Store("a", 0, bytesOf(5), never)
		s.Store("b", 0, bytesOf(5), never)
		s.Touch("a", never)
		s.Store("c", 0, bytesOf(5), never)
		Expect(Keys()).To(Equal([]string{"a", "c"}))
	})

	It("try get doesn't refresh recency", func() {
		s.Store("a", 0, bytesOf(5), never)
		s.Store("b", 0, bytesOf(5), never)
		s.TryGet("a")
		s.Store("c", 0, bytesOf(5), never)
		Expect(Keys()).To(Equal([]string{"b", "c"}))
	})

	It("retrieve of absent key doesn't add it", func() {
		s.Retrieve("ghost")
		Expect(Keys()).To(BeEmpty())
	})

	It("forgets removed and cleared", func() {
		s.Store("a", 0, bytesOf(1), never)
		s.Store("b", 0, bytesOf(1), never)
		s.Remove("a")
		Expect(Keys()).To(Equal([]string{"b"}))
		s.Clear()
		Expect(Keys()).To(BeEmpty())
	})

	It("skips keys missing in store", func() {
		s.Store("a", 0, bytesOf(5), never)
		l.lock.Lock()
		l.table["ghost"] = &node{key: "ghost"}
		l.queue.push(l.table["ghost"])
		l.queue.moveToTail(l.table["a"])
		l.lock.Unlock()
		Expect(Keys()).To(Equal([]string{"ghost", "a"}))

		Expect(l.EvictEntry("")).To(BeTrue())
		Expect(s.Len()).To(BeZero())
		Expect(Keys()).To(BeEmpty())
		Expect(l.EvictEntry("")).To(BeFalse())
	})

	It("keeps entry being written", func() {
		s.Store("a", 0, bytesOf(5), never)
		Expect(l.EvictEntry("a")).To(BeFalse())
		Expect(s.Len()).To(Equal(1))
	})

	It("close unsubscribes", func() {
		Expect(s.bus.subscribers()).To(Equal(1))
		l.Close()
		Expect(s.bus.subscribers()).To(BeZero())
		l.Close()
	})
})

func (q *queue) ExpectInvariantsOk() {
	ExpectWithOffset(1, q.fakeHead.prev).To(BeNil())
	ExpectWithOffset(1, q.fakeTail.next).To(BeNil())
	var n int
	for nd := q.head(); !q.end(nd); nd = nd.next {
		n++
		ExpectWithOffset(1, nd.prev.next).To(BeIdenticalTo(nd))
	}
	ExpectWithOffset(1, q.tail().next).To(BeIdenticalTo(q.fakeTail))
	ExpectWithOffset(1, n).To(Equal(q.len))
}

func (l *lruStrategy) ExpectInvariantsOk() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.queue.ExpectInvariantsOk()
	for nd := l.queue.head(); !l.queue.end(nd); nd = nd.next {
		ExpectWithOffset(1, l.table[nd.key]).To(BeIdenticalTo(nd), "table refs to another node")
	}
	ExpectWithOffset(1, l.queue.len).To(Equal(len(l.table)), "too many items in table")
}
