package lsnpconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnpconfig"
)

func TestLsnpconfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "lsnpconfig Suite")
}

var _ = Describe("Load", func() {
	It("applies spec.md defaults with no file", func() {
		o, err := lsnpconfig.Load("")
		Expect(err).ToNot(HaveOccurred())
		Expect(o.Port).To(Equal(50999))
		Expect(o.PresenceInterval.Seconds()).To(Equal(30.0))
		Expect(o.PeerTTL.Seconds()).To(Equal(90.0))
		Expect(o.FileChunkSize).To(Equal(1024))
		Expect(o.FileWindow).To(Equal(8))
	})

	It("layers a YAML file over the defaults", func() {
		dir := t2TempDir()
		file := filepath.Join(dir, "lsnp.yaml")
		Expect(os.WriteFile(file, []byte("username: Alice\nmode: simulate\nip: 127.0.0.1\n"), 0o600)).To(Succeed())

		o, err := lsnpconfig.Load(file)
		Expect(err).ToNot(HaveOccurred())
		Expect(o.Username).To(Equal("Alice"))
		Expect(o.Port).To(Equal(50999)) // default preserved
	})

	It("rejects a missing username/ip", func() {
		o := lsnpconfig.Default()
		Expect(lsnpconfig.Validate(o)).To(HaveOccurred())
	})

	It("accepts a fully populated Options", func() {
		o := lsnpconfig.Default()
		o.Username = "Alice"
		o.Mode = "simulate"
		o.IP = "127.0.0.1"
		Expect(lsnpconfig.Validate(o)).ToNot(HaveOccurred())
	})
})

func t2TempDir() string {
	d, err := os.MkdirTemp("", "lsnpconfig")
	Expect(err).ToNot(HaveOccurred())
	DeferCleanup(func() { _ = os.RemoveAll(d) })
	return d
}
