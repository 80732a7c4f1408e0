package cache

import (
	"fmt"
	"sync"

	"github.com/skipor/nemcache/internal/tag"
)

// lruStrategy evicts least recently used entry.
// Recency is tracked by store notifications: stores, touches and reads use key,
// removals and clear forget it.
type lruStrategy struct {
	store       *Store
	unsubscribe func()

	// lock protects fields bellow.
	lock  sync.Mutex
	table map[string]*node
	queue *queue
}

func newLRU(s *Store) *lruStrategy {
	l := &lruStrategy{
		store: s,
		table: make(map[string]*node),
		queue: newQueue(),
	}
	l.unsubscribe = s.Subscribe(l.onNotification)
	return l
}

func (l *lruStrategy) onNotification(n Notification) {
	l.lock.Lock()
	defer l.lock.Unlock()
	defer l.checkInvariants()
	switch n.Kind {
	case KindStore, KindTouch:
		l.use(n.Key)
	case KindRetrieve:
		// Reads are not ordered with removals, so read of just removed key
		// should not resurrect it.
		if nd, ok := l.table[n.Key]; ok {
			l.queue.moveToTail(nd)
		}
	case KindRemove:
		l.forget(n.Key)
	case KindClear:
		l.table = make(map[string]*node)
		l.queue = newQueue()
	}
}

func (l *lruStrategy) use(key string) {
	if nd, ok := l.table[key]; ok {
		l.queue.moveToTail(nd)
		return
	}
	nd := &node{key: key}
	l.table[key] = nd
	l.queue.push(nd)
}

func (l *lruStrategy) forget(key string) {
	if nd, ok := l.table[key]; ok {
		delete(l.table, key)
		l.queue.remove(nd)
	}
}

func (l *lruStrategy) EvictEntry(keep string) bool {
	for {
		key, ok := l.oldest(keep)
		if !ok {
			return false
		}
		// Store publishes Remove notification, that detaches node.
		if l.store.evict(key) {
			return true
		}
		// Key is gone already, but its removal notification is still not delivered.
		l.lock.Lock()
		l.forget(key)
		l.lock.Unlock()
	}
}

func (l *lruStrategy) oldest(keep string) (key string, ok bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for nd := l.queue.head(); !l.queue.end(nd); nd = nd.next {
		if nd.key != keep {
			return nd.key, true
		}
	}
	return "", false
}

func (l *lruStrategy) Close() { l.unsubscribe() }

// queue is recency ordered list. Head is least recently used.
// Invariants:
// * queue owns nodes between fakeHead and fakeTail.
// * {fakeHead, all owned nodes, fakeTail} are correct doubly linked list.
// * queue.len equal number of owned nodes.
type queue struct {
	len int
	// Fake nodes. Real nodes are between them.
	// nil <- fakeHead <-> node_0 <-> ... <-> node_(n-1) <-> fakeTail -> nil
	// Such structure prevent nil checks in code.
	fakeHead *node
	fakeTail *node
}

type node struct {
	key  string
	prev *node
	next *node
}

// For debug output.
const fakeHeadKey = " !HEAD! "
const fakeTailKey = " !TAIL! "

func newQueue() *queue {
	q := &queue{}
	q.fakeHead, q.fakeTail = &node{key: fakeHeadKey}, &node{key: fakeTailKey}
	link(q.fakeHead, q.fakeTail)
	return q
}

func (q *queue) push(n *node) {
	q.len++
	link(q.tail(), n)
	link(n, q.fakeTail)
}

func (q *queue) remove(n *node) {
	q.len--
	n.detach()
}

func (q *queue) moveToTail(n *node) {
	n.detach()
	link(q.tail(), n)
	link(n, q.fakeTail)
}

func (q *queue) head() *node      { return q.fakeHead.next }
func (q *queue) tail() *node      { return q.fakeTail.prev }
func (q *queue) end(n *node) bool { return n == q.fakeTail }
func (q *queue) empty() bool      { return q.len == 0 }

func link(a, b *node) { a.next, b.prev = b, a }

func (n *node) GoString() string { return fmt.Sprintf("{key:%q}", n.key) }

func (q *queue) keys() (keys []string) {
	for n := q.head(); !q.end(n); n = n.next {
		keys = append(keys, n.key)
	}
	return
}

func (n *node) detach() {
	link(n.prev, n.next)
	if tag.Debug {
		n.prev = nil
		n.next = nil
	}
}
