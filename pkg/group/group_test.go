package group_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/pkg/group"
)

func TestGroup(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "group Suite")
}

var _ = Describe("Manager", func() {
	It("creates a group with self as owner and sole member", func() {
		m := group.New("Alice@127.0.0.1")
		g := m.Create("studygroup", "CSNETWK Study Group")
		Expect(g.Owner).To(Equal("Alice@127.0.0.1"))
		Expect(g.Members).To(HaveKey("Alice@127.0.0.1"))
	})

	It("lets the owner add and remove members", func() {
		m := group.New("Alice@127.0.0.1")
		m.Create("studygroup", "CSNETWK Study Group")

		members, err := m.Update("studygroup", []string{"Bob@127.0.0.2"}, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(members).To(ContainElement("Bob@127.0.0.2"))
		Expect(m.IsMember("studygroup", "Bob@127.0.0.2")).To(BeTrue())

		members, err = m.Update("studygroup", nil, []string{"Bob@127.0.0.2"})
		Expect(err).ToNot(HaveOccurred())
		Expect(members).ToNot(ContainElement("Bob@127.0.0.2"))
	})

	It("rejects a membership update from a non-owner perspective", func() {
		m := group.New("Bob@127.0.0.2")
		m.ApplyRemoteUpdate("studygroup", "CSNETWK Study Group", "Alice@127.0.0.1", []string{"Alice@127.0.0.1", "Bob@127.0.0.2"})

		_, err := m.Update("studygroup", []string{"Carol@127.0.0.3"}, nil)
		Expect(lsnperr.Is(err, lsnperr.Unauthorized)).To(BeTrue())
	})

	It("replaces the local member view authoritatively on remote update", func() {
		m := group.New("Bob@127.0.0.2")
		m.ApplyRemoteUpdate("studygroup", "CSNETWK Study Group", "Alice@127.0.0.1",
			[]string{"Alice@127.0.0.1", "Bob@127.0.0.2"})
		Expect(m.IsMember("studygroup", "Bob@127.0.0.2")).To(BeTrue())

		m.ApplyRemoteUpdate("studygroup", "CSNETWK Study Group", "Alice@127.0.0.1",
			[]string{"Alice@127.0.0.1", "Bob@127.0.0.2", "Charlie@127.0.0.3"})
		Expect(m.IsMember("studygroup", "Charlie@127.0.0.3")).To(BeTrue())
	})

	It("lists recipients for a group message excluding self", func() {
		m := group.New("Alice@127.0.0.1")
		m.Create("studygroup", "CSNETWK Study Group")
		_, _ = m.Update("studygroup", []string{"Bob@127.0.0.2", "Charlie@127.0.0.3"}, nil)

		recipients, err := m.RecipientsForMessage("studygroup")
		Expect(err).ToNot(HaveOccurred())
		Expect(recipients).To(ConsistOf("Bob@127.0.0.2", "Charlie@127.0.0.3"))
	})

	It("reports IsOwner correctly for the owner-check inbound policy", func() {
		m := group.New("Bob@127.0.0.2")
		m.ApplyRemoteUpdate("studygroup", "CSNETWK Study Group", "Alice@127.0.0.1", []string{"Alice@127.0.0.1"})
		Expect(m.IsOwner("studygroup", "Alice@127.0.0.1")).To(BeTrue())
		Expect(m.IsOwner("studygroup", "Eve@127.0.0.4")).To(BeFalse())
	})
})
