package archive

import (
	"bytes"
	"io"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/nemcache/cache"
	. "github.com/skipor/nemcache/testutil"
)

func storeEntry(key string, data string, id int64) Entry {
	return Entry{Store: &StoreRecord{Key: key, Data: []byte(data), Operation: cache.OpStore, EventID: id}}
}

var _ = Describe("Record", func() {
	for _, codec := range []Codec{Msgpack, CBOR} {
		codec := codec
		Context(codec.Name(), func() {
			It("reads what was written", func() {
				expiry := time.Date(2030, 1, 2, 3, 4, 5, 6, time.UTC)
				entries := []Entry{
					storeEntry("a", "data", 1),
					{Touch: &TouchRecord{Key: "a", Expiry: ExpiryToNanos(expiry), EventID: 2}},
					{Remove: &RemoveRecord{Key: "a", EventID: 3}},
					{Clear: &ClearRecord{EventID: 4}},
					{Store: &StoreRecord{Key: "b", Flags: 7, Data: RandBytes(1000), Operation: cache.OpPrepend, EventID: 5}},
				}
				buf := &bytes.Buffer{}
				for _, e := range entries {
					Expect(WriteRecord(buf, codec, e)).To(Succeed())
				}
				read, truncated, err := ReadAll(buf, codec)
				Expect(err).NotTo(HaveOccurred())
				Expect(truncated).To(BeFalse())
				Expect(cmp.Diff(entries, read)).To(BeEmpty())
				Expect(NanosToExpiry(read[1].Touch.Expiry).Equal(expiry)).To(BeTrue())
			})
		})
	}

	It("codec by name", func() {
		c, err := CodecByName("")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("msgpack"))
		c, err = CodecByName("cbor")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("cbor"))
		_, err = CodecByName("gob")
		Expect(err).To(HaveOccurred())
	})

	It("rejects invalid entry", func() {
		Expect(WriteRecord(&bytes.Buffer{}, Msgpack, Entry{})).NotTo(Succeed())
	})

	Context("broken input", func() {
		var buf *bytes.Buffer
		BeforeEach(func() {
			buf = &bytes.Buffer{}
			for i := int64(1); i <= 3; i++ {
				Expect(WriteRecord(buf, Msgpack, storeEntry("k", "v", i))).To(Succeed())
			}
		})

		It("empty", func() {
			entries, truncated, err := ReadAll(&bytes.Buffer{}, Msgpack)
			Expect(err).NotTo(HaveOccurred())
			Expect(truncated).To(BeFalse())
			Expect(entries).To(BeEmpty())
		})

		It("torn tail", func() {
			full := buf.Len()
			Expect(WriteRecord(buf, Msgpack, storeEntry("k", "torn", 4))).To(Succeed())
			for cut := full + 1; cut < buf.Len(); cut++ {
				r := NewReader(bytes.NewReader(buf.Bytes()[:cut]), Msgpack)
				for i := 0; i < 3; i++ {
					_, err := r.Next()
					Expect(err).NotTo(HaveOccurred())
				}
				_, err := r.Next()
				Expect(IsTruncated(err)).To(BeTrue(), "cut %v: %v", cut, err)
				Expect(r.Offset()).To(BeEquivalentTo(full))
				Expect(r.Records()).To(Equal(3))
			}
		})

		It("garbage tail", func() {
			buf.Write([]byte{0, 0, 0, 3, 0xc1, 0xc1, 0xc1})
			entries, truncated, err := ReadAll(buf, Msgpack)
			Expect(err).NotTo(HaveOccurred())
			Expect(truncated).To(BeTrue())
			Expect(entries).To(HaveLen(3))
		})

		It("torn first record is truncated", func() {
			entries, truncated, err := ReadAll(bytes.NewReader(buf.Bytes()[:5]), Msgpack)
			Expect(err).NotTo(HaveOccurred())
			Expect(truncated).To(BeTrue())
			Expect(entries).To(BeEmpty())
		})

		It("undecodable first record is corrupt", func() {
			data := append([]byte{0, 0, 0, 3, 0xc1, 0xc1, 0xc1}, buf.Bytes()...)
			_, _, err := ReadAll(bytes.NewReader(data), Msgpack)
			Expect(err).To(HaveOccurred())
			Expect(IsCorrupt(err)).To(BeTrue())
		})

		It("I/O error", func() {
			_, _, err := ReadAll(io.MultiReader(bytes.NewReader(buf.Bytes()[:10]), errReader{}), Msgpack)
			Expect(err).To(HaveOccurred())
			Expect(IsTruncated(err)).To(BeFalse())
		})
	})

	It("notification conversion", func() {
		n := cache.Notification{
			Kind:      cache.KindStore,
			Key:       "k",
			Data:      []byte("v"),
			Flags:     3,
			Expiry:    time.Unix(100, 5),
			Operation: cache.OpAppend,
			EventID:   10,
		}
		e, ok := FromNotification(n)
		Expect(ok).To(BeTrue())
		Expect(e.EventID()).To(BeEquivalentTo(10))
		back := e.Notification()
		Expect(back.Expiry.Equal(n.Expiry)).To(BeTrue())
		back.Expiry = n.Expiry
		Expect(back).To(Equal(n))

		_, ok = FromNotification(cache.Notification{Kind: cache.KindRetrieve, Key: "k"})
		Expect(ok).To(BeFalse())

		e, _ = FromNotification(cache.Notification{Kind: cache.KindTouch, Key: "k", EventID: 11})
		Expect(e.Touch.Expiry).To(BeZero())
		Expect(e.Notification().Expiry.IsZero()).To(BeTrue())
	})
})

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }
