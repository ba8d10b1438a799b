package game_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/pkg/game"
)

func TestGame(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "game Suite")
}

var _ = Describe("NewGameID", func() {
	It("mints a 16-char hex id", func() {
		id, err := game.NewGameID()
		Expect(err).ToNot(HaveOccurred())
		Expect(id).To(HaveLen(16))
	})
})

var _ = Describe("Session lifecycle", func() {
	It("starts PENDING_ACCEPT and becomes ACTIVE with turn X on Accept", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		Expect(s.Status()).To(Equal(game.StatusPendingAccept))
		s.Accept()
		Expect(s.Status()).To(Equal(game.StatusActive))
	})

	It("rejects a move from the wrong player's turn", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		s.Accept()
		_, _, err := s.ApplyMove("Bob@127.0.0.2", 0, 0)
		Expect(lsnperr.Is(err, lsnperr.Unauthorized)).To(BeTrue())
	})

	It("rejects a move into a non-empty cell", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		s.Accept()
		_, _, err := s.ApplyMove("Alice@127.0.0.1", 0, 0)
		Expect(err).ToNot(HaveOccurred())
		_, _, err = s.ApplyMove("Bob@127.0.0.2", 0, 1)
		Expect(lsnperr.Is(err, lsnperr.MalformedFrame)).To(BeTrue())
	})

	It("rejects an out-of-sequence move_seq", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		s.Accept()
		_, _, err := s.ApplyMove("Alice@127.0.0.1", 0, 5)
		Expect(lsnperr.Is(err, lsnperr.MalformedFrame)).To(BeTrue())
	})

	It("acknowledges a duplicate move_seq idempotently", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		s.Accept()
		_, _, err := s.ApplyMove("Alice@127.0.0.1", 0, 0)
		Expect(err).ToNot(HaveOccurred())

		_, ended, err := s.ApplyMove("Alice@127.0.0.1", 0, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(ended).To(BeFalse())
	})

	It("ends the game WON_X on the scripted scenario X=0,O=4,X=1,O=5,X=2", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		s.Accept()

		moves := []struct {
			player string
			pos    int
		}{
			{"Alice@127.0.0.1", 0},
			{"Bob@127.0.0.2", 4},
			{"Alice@127.0.0.1", 1},
			{"Bob@127.0.0.2", 5},
			{"Alice@127.0.0.1", 2},
		}

		var status game.Status
		var ended bool
		var err error
		for i, mv := range moves {
			status, ended, err = s.ApplyMove(mv.player, mv.pos, i)
			Expect(err).ToNot(HaveOccurred())
		}
		Expect(ended).To(BeTrue())
		Expect(status).To(Equal(game.StatusWonX))
	})

	It("declares a draw when the board fills with no winner", func() {
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		s.Accept()

		// X O X / X O O / O X X -> full board, no three-in-a-row
		positions := []int{0, 1, 2, 5, 3, 4, 7, 6, 8}
		players := []string{"Alice@127.0.0.1", "Bob@127.0.0.2"}

		var status game.Status
		var ended bool
		for i, pos := range positions {
			status, ended, _ = s.ApplyMove(players[i%2], pos, i)
		}
		Expect(ended).To(BeTrue())
		Expect(status).To(Equal(game.StatusDraw))
	})
})

var _ = Describe("Manager", func() {
	It("tracks and removes active sessions", func() {
		m := game.New()
		s := game.Invite("g1", "Alice@127.0.0.1", "Bob@127.0.0.2")
		m.Add(s)

		_, ok := m.Lookup("g1")
		Expect(ok).To(BeTrue())

		m.Remove("g1")
		_, ok = m.Lookup("g1")
		Expect(ok).To(BeFalse())
	})
})
