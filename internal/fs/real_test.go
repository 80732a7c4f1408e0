package fs

import (
	"io/ioutil"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Real", func() {
	var (
		dir  string
		fsys Real
	)
	BeforeEach(func() {
		var err error
		dir, err = ioutil.TempDir("", "nemcache_fs_")
		Expect(err).NotTo(HaveOccurred())
		fsys = NewReal()
	})
	AfterEach(func() { os.RemoveAll(dir) })
	Path := func(name string) string { return filepath.Join(dir, name) }
	Write := func(name, data string) {
		Expect(ioutil.WriteFile(Path(name), []byte(data), 0644)).To(Succeed())
	}
	Read := func(name string) string {
		data, err := ioutil.ReadFile(Path(name))
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	It("exists and size", func() {
		ok, err := fsys.Exists(Path("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Write("x", "12345")
		ok, err = fsys.Exists(Path("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(fsys.Size(Path("x"))).To(BeEquivalentTo(5))
	})

	Context("replace", func() {
		BeforeEach(func() {
			Write("log", "old")
			Write("log.tmp", "new")
		})
		It("with backup", func() {
			Write("log.bak", "stale")
			Expect(fsys.Replace(Path("log.tmp"), Path("log"), Path("log.bak"))).To(Succeed())
			Expect(Read("log")).To(Equal("new"))
			Expect(Read("log.bak")).To(Equal("old"))
			Expect(fsys.Exists(Path("log.tmp"))).To(BeFalse())
		})
		It("without backup", func() {
			Expect(fsys.Replace(Path("log.tmp"), Path("log"), "")).To(Succeed())
			Expect(Read("log")).To(Equal("new"))
			Expect(fsys.Exists(Path("log.bak"))).To(BeFalse())
		})
		It("missing destination", func() {
			Expect(fsys.Replace(Path("log.tmp"), Path("other"), Path("other.bak"))).To(Succeed())
			Expect(Read("other")).To(Equal("new"))
		})
	})

	It("lock is exclusive", func() {
		l, err := fsys.Lock(Path("log"))
		Expect(err).NotTo(HaveOccurred())
		_, err = fsys.Lock(Path("log"))
		Expect(err).To(HaveOccurred())
		Expect(l.Close()).To(Succeed())
		l, err = fsys.Lock(Path("log"))
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Close()).To(Succeed())
	})
})
