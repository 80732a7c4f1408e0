// +build debug

// Gomega should not be dependency in non-debug build.

package cache

import (
	"errors"
	"log"

	"github.com/facebookgo/stackerr"
	. "github.com/onsi/gomega"
)

var _ = func() (_ struct{}) {
	RegisterFailHandler(GomegaFailHandler)
	return
}()

func GomegaFailHandler(message string, callerSkip ...int) {
	skip := callerSkip[0] + 1
	log.Fatal("FATAL: invariants are broken:", stackerr.WrapSkip(errors.New(message), skip))
}

// checkInvariants requires store to be quiescent.
func (s *Store) checkInvariants() {
	var used, count int64
	s.items.Range(func(k, v interface{}) bool {
		it := v.(*item)
		if it.present() {
			used += it.size()
			count++
		}
		return true
	})
	Expect(s.used.Load()).To(Equal(used), "used bytes")
	Expect(s.count.Load()).To(Equal(count), "items count")
}

func (l *lruStrategy) checkInvariants() {
	q := l.queue
	Expect(q.fakeHead.prev).To(BeNil())
	Expect(q.fakeTail.next).To(BeNil())
	var n int
	for nd := q.head(); !q.end(nd); nd = nd.next {
		n++
		Expect(nd.prev.next).To(BeIdenticalTo(nd))
		Expect(l.table[nd.key]).To(BeIdenticalTo(nd), "table refs to another node")
	}
	Expect(q.tail().next).To(BeIdenticalTo(q.fakeTail))
	Expect(n).To(Equal(q.len))
	Expect(n).To(Equal(len(l.table)), "too many items in table")
}
