package token_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/pkg/token"
)

func TestToken(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "token Suite")
}

var _ = Describe("Service", func() {
	var (
		now time.Time
		svc *token.Service
	)

	BeforeEach(func() {
		now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		svc = token.New("Alice@127.0.0.1")
		svc.SetClock(func() time.Time { return now })
	})

	It("issues and validates a token within TTL", func() {
		tok := svc.Issue(token.ScopeChat, 5*time.Minute)
		Expect(svc.Validate(tok, "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonValid))
	})

	It("rejects a malformed token", func() {
		Expect(svc.Validate("garbage", "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonBadFormat))
		Expect(svc.Validate("a|b", "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonBadFormat))
		Expect(svc.Validate("a|notanumber|chat", "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonBadFormat))
	})

	It("rejects an issuer mismatch", func() {
		tok := svc.Issue(token.ScopeChat, 5*time.Minute)
		Expect(svc.Validate(tok, "Bob@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonIssuerMismatch))
	})

	It("rejects an expired token beyond clock skew", func() {
		tok := svc.Issue(token.ScopeChat, 1*time.Minute)
		now = now.Add(2 * time.Minute).Add(token.ClockSkew).Add(time.Second)
		Expect(svc.Validate(tok, "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonExpired))
	})

	It("tolerates expiry within the clock skew window", func() {
		tok := svc.Issue(token.ScopeChat, 1*time.Minute)
		now = now.Add(1 * time.Minute).Add(30 * time.Second)
		Expect(svc.Validate(tok, "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonValid))
	})

	It("rejects a scope mismatch", func() {
		tok := svc.Issue(token.ScopeGame, 5*time.Minute)
		Expect(svc.Validate(tok, "Alice@127.0.0.1", token.ScopeChat)).To(Equal(token.ReasonScopeMismatch))
	})

	It("wraps rejection as a coded error with sender and scope detail", func() {
		tok := svc.Issue(token.ScopeGame, 5*time.Minute)
		err := svc.ValidateAsError(tok, "Alice@127.0.0.1", token.ScopeChat)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("Alice@127.0.0.1"))
		Expect(err.Error()).To(ContainSubstring("expected chat"))
		Expect(err.Error()).To(ContainSubstring("got game"))
	})

	It("returns nil on a valid token", func() {
		tok := svc.Issue(token.ScopeBroadcast, 5*time.Minute)
		Expect(svc.ValidateAsError(tok, "Alice@127.0.0.1", token.ScopeBroadcast)).ToNot(HaveOccurred())
	})
})

var _ = Describe("ScopeForType", func() {
	It("maps chat types", func() {
		s, ok := token.ScopeForType("DM")
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(token.ScopeChat))

		s, ok = token.ScopeForType("GROUP_MESSAGE")
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(token.ScopeChat))
	})

	It("maps broadcast types", func() {
		for _, typ := range []string{"POST", "PROFILE", "PING"} {
			s, ok := token.ScopeForType(typ)
			Expect(ok).To(BeTrue())
			Expect(s).To(Equal(token.ScopeBroadcast))
		}
	})

	It("maps follow, group, file and game types", func() {
		s, _ := token.ScopeForType("FOLLOW")
		Expect(s).To(Equal(token.ScopeFollow))

		s, _ = token.ScopeForType("GROUP_CREATE")
		Expect(s).To(Equal(token.ScopeGroup))

		s, _ = token.ScopeForType("FILE_CHUNK")
		Expect(s).To(Equal(token.ScopeFile))

		s, _ = token.ScopeForType("TICTACTOE_MOVE")
		Expect(s).To(Equal(token.ScopeGame))
	})

	It("reports ok=false for token-less types", func() {
		_, ok := token.ScopeForType("LIKE")
		Expect(ok).To(BeFalse())
		_, ok = token.ScopeForType("ACK")
		Expect(ok).To(BeFalse())
	})
})
