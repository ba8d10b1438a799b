package lsnplog_test

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnplog"
)

func TestLsnplog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "lsnplog Suite")
}

var _ = Describe("Logger", func() {
	It("logs at info level without verbose", func() {
		buf := &bytes.Buffer{}
		l := lsnplog.New(buf)
		l.Info("hello", lsnplog.Fields{"k": "v"})
		Expect(buf.String()).To(ContainSubstring("hello"))
	})

	It("only mirrors frames when verbose", func() {
		buf := &bytes.Buffer{}
		l := lsnplog.New(buf)
		l.Frame("in", []byte("TYPE: PING\n\n"), map[string]string{"TYPE": "PING"}, "127.0.0.1:1234")
		Expect(buf.String()).To(BeEmpty())

		l.SetVerbose(true)
		Expect(l.Verbose()).To(BeTrue())
		l.Frame("in", []byte("TYPE: PING\n\n"), map[string]string{"TYPE": "PING"}, "127.0.0.1:1234")
		Expect(strings.Contains(buf.String(), "frame")).To(BeTrue())
	})
})
