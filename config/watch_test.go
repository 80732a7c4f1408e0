package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"

	"github.com/skipor/nemcache/log"
	. "github.com/skipor/nemcache/testutil"
)

var _ = Describe("Watch", func() {
	var (
		dir    string
		path   string
		ctx    context.Context
		cancel context.CancelFunc
		done   chan struct{}
	)
	BeforeEach(func() {
		dir = TmpDir()
		path = filepath.Join(dir, "nemcache.json")
		gomega.Expect(os.WriteFile(path, []byte(`{"log-level": "info"}`), 0644)).To(gomega.Succeed())
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
	})
	AfterEach(func() {
		cancel()
		gomega.Eventually(done).Should(gomega.BeClosed())
		os.RemoveAll(dir)
	})

	// rewriteUntil rewrites config until cond is met, because watch can start after first write.
	rewriteUntil := func(content string, cond func() bool) {
		gomega.EventuallyWithOffset(1, func() bool {
			gomega.ExpectWithOffset(2, os.WriteFile(path, []byte(content), 0644)).To(gomega.Succeed())
			time.Sleep(20 * time.Millisecond)
			return cond()
		}, 5*time.Second).Should(gomega.BeTrue())
	}

	It("reloads changed config", func() {
		changes := make(chan *Config, 1)
		go func() {
			defer GinkgoRecover()
			defer close(done)
			err := Watch(ctx, path, func(c *Config, err error) {
				if err != nil {
					return
				}
				select {
				case changes <- c:
				default:
				}
			})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		}()
		var last *Config
		rewriteUntil(`{"log-level": "debug", "cache-size": "2m"}`, func() bool {
			select {
			case last = <-changes:
			default:
			}
			return last != nil && last.LogLevel == "debug"
		})
		gomega.Expect(last.CacheSize).To(gomega.Equal("2m"))
		gomega.Expect(last.Eviction).To(gomega.Equal("lru"))
	})

	It("changes log level", func() {
		level := log.NewAtomicLevel(log.InfoLevel)
		l := log.NewLoggerAt(level, GinkgoWriter)
		go func() {
			defer GinkgoRecover()
			defer close(done)
			gomega.Expect(WatchLogLevel(ctx, l, path, level)).To(gomega.Succeed())
		}()
		rewriteUntil(`{"log-level": "debug"}`, func() bool { return level.Enabled(log.DebugLevel) })
		rewriteUntil(`{"log-level": "error"}`, func() bool { return !level.Enabled(log.WarnLevel) })
	})
})
