package log

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Logger", func() {
	var buf *gbytes.Buffer
	BeforeEach(func() { buf = gbytes.NewBuffer() })

	It("filters by level", func() {
		l := NewLogger(WarnLevel, buf)
		l.Info("hidden message")
		l.Warnf("visible %d", 42)
		Expect(buf).To(gbytes.Say("WARN"))
		Expect(buf).To(gbytes.Say("visible 42"))
		Expect(string(buf.Contents())).NotTo(ContainSubstring("hidden"))
	})

	It("level can be changed on the fly", func() {
		lvl := NewAtomicLevel(ErrorLevel)
		l := NewLoggerAt(lvl, buf)
		l.Info("first")
		lvl.SetLevel(DebugLevel)
		Expect(lvl.Enabled(DebugLevel)).To(BeTrue())
		l.Debug("second")
		Expect(buf).To(gbytes.Say("second"))
		Expect(string(buf.Contents())).NotTo(ContainSubstring("first"))
	})

	It("with fields", func() {
		l := NewLogger(DebugLevel, buf).WithFields(Fields{"conn": 1})
		l = l.WithFields(Fields{"key": "x"})
		Expect(l.Fields()).To(Equal(Fields{"conn": 1, "key": "x"}))
		l.Info("msg")
		Expect(buf).To(gbytes.Say(`conn`))
	})

	It("panic", func() {
		l := NewLogger(DebugLevel, buf)
		Expect(func() { l.Panicf("boom %v", 1) }).To(Panic())
		Expect(buf).To(gbytes.Say("boom 1"))
	})

	It("nop", func() {
		l := NewNop()
		l.Error("nothing")
		Expect(l.WithFields(Fields{"a": 1}).Fields()).To(HaveKey("a"))
	})

	DescribeTable("level parse",
		func(s string, expected Level) {
			l, err := LevelFromString(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(l).To(Equal(expected))
		},
		Entry("lower", "info", InfoLevel),
		Entry("upper", "DEBUG", DebugLevel),
		Entry("mixed", "Warn", WarnLevel),
	)

	It("invalid level", func() {
		_, err := LevelFromString("verbose")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Logrus adapter", func() {
	It("writes through logrus", func() {
		out := &bytes.Buffer{}
		lr := logrus.New()
		lr.SetOutput(out)
		lr.SetLevel(logrus.DebugLevel)
		l := FromLogrus(logrus.NewEntry(lr)).WithFields(Fields{"store": "a"})
		l.Infof("hello %s", "world")
		Expect(out.String()).To(ContainSubstring("hello world"))
		Expect(out.String()).To(ContainSubstring("store=a"))
		Expect(l.Fields()).To(HaveKeyWithValue("store", "a"))
	})
})
