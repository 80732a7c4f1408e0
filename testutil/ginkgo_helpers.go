package testutil

import (
	"bytes"
	"os"

	. "github.com/onsi/gomega"
)

const maxPrintableLen = 1024

// ExpectBytesEqual have much less overhead for large byte chunks but ginkgo.Equal.
func ExpectBytesEqual(a, b []byte) {
	ExpectBytesEqualWithOffset(1, a, b)
}

func ExpectBytesEqualWithOffset(off int, a, b []byte) {
	off++
	if bytes.Equal(a, b) {
		return
	}
	if len(a)+len(b) <= 2*maxPrintableLen {
		ExpectWithOffset(off, a).To(Equal(b))
	}
	ExpectWithOffset(off, len(a)).To(Equal(len(b)), "Length are unequal and data is too large to print.")
	for i, ab := range a {
		if ab != b[i] {
			end := i + maxPrintableLen
			if end > len(a) {
				end = len(a)
			}
			ExpectWithOffset(off, a[i:end]).To(Equal(b[i:end]), "Skiped %v equal bytes.", i)
		}
	}
}

// TmpDir creates temporary dir. Caller should remove it.
func TmpDir() string {
	dir, err := os.MkdirTemp("", "nemcache_test_")
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return dir
}

// TmpFileName returns path of not existing file.
func TmpFileName() string {
	f, err := os.CreateTemp("", "go_test_tmp_")
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	name := f.Name()
	ExpectWithOffset(1, f.Close()).To(Succeed())
	ExpectWithOffset(1, os.Remove(name)).To(Succeed())
	return name
}
