package replay

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/internal/fs"
	"github.com/skipor/nemcache/log"
	. "github.com/skipor/nemcache/testutil"
)

var _ = Describe("History", func() {
	Collect := func(h History) (ids []int64, through int64) {
		through, err := h.Replay(func(n cache.Notification) { ids = append(ids, n.EventID) })
		Expect(err).NotTo(HaveOccurred())
		return
	}

	It("state", func() {
		s := cache.NewStore(log.NewNop(), clock.NewFake(time.Time{}), cache.Config{})
		defer s.Dispose()
		s.Store("a", 0, []byte("1"), time.Time{})
		s.Store("b", 0, []byte("2"), time.Time{})
		s.Store("a", 0, []byte("3"), time.Time{})
		ids, through := Collect(StateHistory(s.CurrentState))
		Expect(ids).To(Equal([]int64{2, 3}))
		Expect(through).To(BeEquivalentTo(3))
	})

	It("chan", func() {
		ch := make(chan cache.Notification, 3)
		ch <- note(1)
		ch <- note(5)
		close(ch)
		ids, through := Collect(ChanHistory(ch))
		Expect(ids).To(Equal([]int64{1, 5}))
		Expect(through).To(BeEquivalentTo(5))
	})

	Context("log", func() {
		var (
			dir  string
			path string
			fsys fs.FS
		)
		BeforeEach(func() {
			dir = TmpDir()
			path = filepath.Join(dir, "log")
			fsys = fs.NewReal()
		})
		AfterEach(func() { os.RemoveAll(dir) })

		It("missing file is empty", func() {
			ids, through := Collect(LogHistory(fsys, path, archive.Msgpack))
			Expect(ids).To(BeEmpty())
			Expect(through).To(BeZero())
		})

		It("replays records and ignores torn tail", func() {
			f, err := os.Create(path)
			Expect(err).NotTo(HaveOccurred())
			for _, n := range []cache.Notification{
				{Kind: cache.KindStore, Key: "a", Data: []byte("x"), Operation: cache.OpAdd, EventID: 1},
				{Kind: cache.KindTouch, Key: "a", EventID: 2},
				{Kind: cache.KindClear, EventID: 3},
			} {
				e, ok := archive.FromNotification(n)
				Expect(ok).To(BeTrue())
				Expect(archive.WriteRecord(f, archive.CBOR, e)).To(Succeed())
			}
			_, err = f.Write([]byte{0, 0, 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Close()).To(Succeed())

			ids, through := Collect(LogHistory(fsys, path, archive.CBOR))
			Expect(ids).To(Equal([]int64{1, 2, 3}))
			Expect(through).To(BeEquivalentTo(3))
		})
	})
})
