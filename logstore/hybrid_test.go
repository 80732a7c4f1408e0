package logstore

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/skipor/nemcache/internal/fs"
	. "github.com/skipor/nemcache/testutil"
)

var _ = Describe("Hybrid", func() {
	var (
		dir  string
		conf HybridConfig
	)
	BeforeEach(func() {
		dir = TmpDir()
		conf = HybridConfig{Path: filepath.Join(dir, "hybrid.log"), MemoryLimit: 64}
	})
	AfterEach(func() { os.RemoveAll(dir) })

	open := func() *Hybrid {
		h, err := OpenHybrid(fs.NewReal(), conf)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return h
	}
	path := func() string { return conf.Path }
	fileSize := func() int64 {
		info, err := os.Stat(conf.Path)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return info.Size()
	}

	storeBehaviour(func() Store { return open() }, path)

	Context("flush on every write", func() {
		BeforeEach(func() { conf.MemoryLimit = 0 })
		storeBehaviour(func() Store { return open() }, path)
	})

	It("serves buffered writes, flushes over limit", func() {
		h := open()
		defer h.Close()
		Expect(h.Put("a", []byte("1"))).To(Succeed())
		Expect(h.Buffered()).To(BeEquivalentTo(recordSize("a", []byte("1"))))
		Expect(fileSize()).To(BeZero())
		expectGet(h, "a", "1")

		Expect(h.Put("b", RandBytes(64))).To(Succeed())
		Expect(h.Buffered()).To(BeZero())
		Expect(fileSize()).To(Equal(recordSize("a", []byte("1")) + recordSize("b", make([]byte, 64))))
		expectGet(h, "a", "1")

		Expect(h.Put("c", []byte("2"))).To(Succeed())
		Expect(h.Put("a", []byte("3"))).To(Succeed())
		expectGet(h, "a", "3")
		expectGet(h, "c", "2")
		Expect(h.Sync()).To(Succeed())
		Expect(h.Buffered()).To(BeZero())
		expectGet(h, "a", "3")
	})

	It("compaction keeps live entries only", func() {
		h := open()
		for i := 0; i < 10; i++ {
			Expect(h.Put("a", RandBytes(16))).To(Succeed())
		}
		Expect(h.Put("b", []byte("2"))).To(Succeed())
		Expect(h.Put("c", []byte("3"))).To(Succeed())
		Expect(h.Delete("c")).To(Succeed())
		Expect(h.Put("a", []byte("1"))).To(Succeed())
		Expect(h.Close()).To(Succeed())
		before := fileSize()

		Expect(CompactHybrid(fs.NewReal(), conf)).To(Succeed())
		Expect(fileSize()).To(Equal(recordSize("a", []byte("1")) + recordSize("b", []byte("2"))))
		Expect(fileSize()).To(BeNumerically("<", before))
		backup, err := os.Stat(conf.Path + ".bak")
		Expect(err).NotTo(HaveOccurred())
		Expect(backup.Size()).To(Equal(before))

		h = open()
		defer h.Close()
		Expect(contentOf(h)).To(Equal(map[string]string{"a": "1", "b": "2"}))
		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
	})
})

var _ = Describe("Compact", func() {
	It("copies bitcask into hybrid", func() {
		dir := TmpDir()
		defer os.RemoveAll(dir)
		src, err := OpenBitcask(fs.NewReal(), BitcaskConfig{Dir: filepath.Join(dir, "src")})
		Expect(err).NotTo(HaveOccurred())
		defer src.Close()
		dst, err := OpenHybrid(fs.NewReal(), HybridConfig{Path: filepath.Join(dir, "dst")})
		Expect(err).NotTo(HaveOccurred())
		defer dst.Close()
		Expect(src.Put("a", []byte("1"))).To(Succeed())
		Expect(src.Put("b", []byte("2"))).To(Succeed())
		Expect(src.Delete("a")).To(Succeed())

		Expect(Compact(dst, src)).To(Succeed())
		Expect(contentOf(dst)).To(Equal(map[string]string{"b": "2"}))
	})
})
