/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// commands.go implements the command surface spec.md §6 exposes to the
// CLI: Execute tokenizes one input line and dispatches to the matching
// subsystem mutation, returning the text the REPL should print.
package dispatcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/codec"
	"github.com/nabbar/lsnp/pkg/filetransfer"
	"github.com/nabbar/lsnp/pkg/game"
	"github.com/nabbar/lsnp/pkg/presence"
	"github.com/nabbar/lsnp/pkg/social"
)

// unicastSender adapts a Dispatcher into a filetransfer.Sender, so
// Transfer.SendChunks and Transfer.RetransmitOverdue can emit FILE_CHUNK
// frames without filetransfer importing codec or transport (spec.md §4.7
// step 3).
type unicastSender struct {
	d        *Dispatcher
	receiver string
}

func (u unicastSender) SendChunk(fileID string, seq int, data []byte, compressed bool) error {
	m := u.d.newMessage(codec.TypeFileChunk,
		kv{"FILE_ID", fileID},
		kv{"SEQ", formatEpoch(int64(seq))},
		kv{"DATA", base64.StdEncoding.EncodeToString(data)},
		kv{"COMPRESSED", strconv.FormatBool(compressed)},
	)
	return u.d.sendUnicastTo(context.Background(), u.receiver, m)
}

func (u unicastSender) SendComplete(fileID string) error {
	m := u.d.newMessage(codec.TypeFileComplete, kv{"FILE_ID", fileID})
	return u.d.sendUnicastTo(context.Background(), u.receiver, m)
}

// Execute tokenizes line and runs the named command, returning the
// response text to print (spec.md §6 command table). An empty line is a
// no-op.
func (d *Dispatcher) Execute(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "help":
		return helpText

	case "verbose":
		d.log.SetVerbose(!d.log.Verbose())
		return fmt.Sprintf("verbose logging: %v", d.log.Verbose())

	case "profile":
		return d.cmdProfile(ctx, rest)

	case "post":
		return d.cmdPost(ctx, line)

	case "dm":
		return d.cmdDM(ctx, rest, line)

	case "follow":
		if len(rest) < 1 {
			return "usage: follow <user>"
		}
		d.soc.Follow(rest[0])
		if err := d.sendUnicastTo(ctx, rest[0], d.newMessage(codec.TypeFollow)); err != nil {
			return "error: " + err.Error()
		}
		return "following " + rest[0]

	case "unfollow":
		if len(rest) < 1 {
			return "usage: unfollow <user>"
		}
		d.soc.Unfollow(rest[0])
		if err := d.sendUnicastTo(ctx, rest[0], d.newMessage(codec.TypeUnfollow)); err != nil {
			return "error: " + err.Error()
		}
		return "unfollowed " + rest[0]

	case "like":
		return d.cmdLike(ctx, rest)

	case "peers":
		return d.cmdPeers()

	case "dms", "posts":
		return d.cmdPosts()

	case "groups":
		return d.cmdGroups()

	case "group":
		return d.cmdGroup(ctx, rest, line)

	case "file_offer":
		return d.cmdFileOffer(ctx, rest)

	case "file_accept":
		return d.cmdFileAccept(ctx, rest)

	case "tictactoe_invite":
		return d.cmdGameInvite(ctx, rest)

	case "tictactoe_accept":
		return d.cmdGameAccept(ctx, rest)

	case "tictactoe_move":
		return d.cmdGameMove(ctx, rest)

	default:
		return "unknown command: " + cmd + " (try 'help')"
	}
}

const helpText = `profile <status> [avatar_path]   update own profile, broadcast PROFILE
post <body>                      broadcast POST
dm <user> <body>                 unicast DM
follow <user> / unfollow <user>  social-graph update
like <user> <timestamp>          unicast LIKE
peers / dms / posts / groups     list state
group create <id> <title>        create group
group update <id> add|remove <user>   owner-only membership change
group msg <id> <body>            send to group
file_offer <user> <path>         initiate transfer
file_accept <file_id>            accept incoming transfer
tictactoe_invite <user>          start game
tictactoe_accept <game_id>       accept game
tictactoe_move <game_id> <pos 0..8>   play
verbose                          toggle verbose logging
help                             list commands`

func (d *Dispatcher) cmdProfile(ctx context.Context, rest []string) string {
	if len(rest) < 1 {
		return "usage: profile <status> [avatar_path]"
	}
	p := presence.Profile{DisplayName: d.self, Status: rest[0]}
	if len(rest) >= 2 {
		data, err := os.ReadFile(rest[1])
		if err != nil {
			return fmt.Sprintf("avatar read failed: %s", err)
		}
		if len(data) > d.cfg.AvatarInlineCap {
			return fmt.Sprintf("avatar too large: %d bytes (cap %d)", len(data), d.cfg.AvatarInlineCap)
		}
		p.AvatarType = mimeFromExt(rest[1])
		p.AvatarData = base64.StdEncoding.EncodeToString(data)
	}
	d.SetProfile(p)
	if err := d.broadcastProfile(ctx, p); err != nil {
		return fmt.Sprintf("broadcast failed: %s", err)
	}
	return "profile updated"
}

func mimeFromExt(path string) string {
	switch {
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func (d *Dispatcher) cmdPost(ctx context.Context, line string) string {
	body := strings.TrimSpace(strings.TrimPrefix(line, "post"))
	if body == "" {
		return "usage: post <body>"
	}
	ts := epochNow()
	m := d.newMessage(codec.TypePost, kv{"CONTENT", body}, kv{"TIMESTAMP", formatEpoch(ts)})
	if err := d.sendBroadcast(ctx, m); err != nil {
		return fmt.Sprintf("broadcast failed: %s", err)
	}
	d.soc.RecordOutgoingPost(social.Post{Author: d.self, Timestamp: ts, Body: body})
	return "posted"
}

func (d *Dispatcher) cmdDM(ctx context.Context, rest []string, line string) string {
	if len(rest) < 2 {
		return "usage: dm <user> <body>"
	}
	user := rest[0]
	body := strings.TrimSpace(strings.TrimPrefix(line, "dm "+user))
	m := d.newMessage(codec.TypeDM, kv{"CONTENT", body}, kv{"TIMESTAMP", formatEpoch(epochNow())})
	if err := d.sendUnicastTo(ctx, user, m); err != nil {
		return "error: " + err.Error()
	}
	return "dm sent to " + user
}

func (d *Dispatcher) cmdLike(ctx context.Context, rest []string) string {
	if len(rest) < 2 {
		return "usage: like <user> <timestamp>"
	}
	m := d.newMessage(codec.TypeLike, kv{"AUTHOR", rest[0]}, kv{"POST_TIMESTAMP", rest[1]})
	if err := d.sendUnicastTo(ctx, rest[0], m); err != nil {
		return "error: " + err.Error()
	}
	return "like sent"
}

func (d *Dispatcher) cmdPeers() string {
	var b strings.Builder
	for _, r := range d.dir.List() {
		fmt.Fprintf(&b, "%s %s %s (last seen %s)\n", r.UserID, r.Addr, r.Status, r.LastSeen.Format("15:04:05"))
	}
	if b.Len() == 0 {
		return "(no peers discovered yet)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) cmdPosts() string {
	var b strings.Builder
	for _, p := range d.soc.Posts() {
		fmt.Fprintf(&b, "%s: %s\n", p.Author, p.Body)
	}
	for _, p := range d.soc.OwnPosts() {
		fmt.Fprintf(&b, "(you): %s\n", p.Body)
	}
	if b.Len() == 0 {
		return "(no posts)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) cmdGroups() string {
	var b strings.Builder
	for _, g := range d.grp.List() {
		fmt.Fprintf(&b, "%s '%s' owner=%s members=%d\n", g.ID, g.Title, g.Owner, len(g.Members))
	}
	if b.Len() == 0 {
		return "(no groups)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) cmdGroup(ctx context.Context, rest []string, line string) string {
	if len(rest) < 1 {
		return "usage: group create|update|msg ..."
	}
	switch rest[0] {
	case "create":
		if len(rest) < 3 {
			return "usage: group create <id> <title>"
		}
		groupID, title := rest[1], strings.Join(rest[2:], " ")
		d.grp.Create(groupID, title)
		m := d.newMessage(codec.TypeGroupCreate, kv{"GROUP_ID", groupID}, kv{"TITLE", title})
		_ = d.sendBroadcast(ctx, m)
		return "group created: " + groupID

	case "update":
		if len(rest) < 4 {
			return "usage: group update <id> add|remove <user>"
		}
		groupID, action, user := rest[1], rest[2], rest[3]
		var add, remove []string
		switch action {
		case "add":
			add = []string{user}
		case "remove":
			remove = []string{user}
		default:
			return "usage: group update <id> add|remove <user>"
		}
		members, err := d.grp.Update(groupID, add, remove)
		if err != nil {
			return "error: " + err.Error()
		}
		m := d.newMessage(codec.TypeGroupUpdate, kv{"GROUP_ID", groupID}, kv{"MEMBERS", strings.Join(members, ",")})
		for _, u := range members {
			if u == d.self {
				continue
			}
			_ = d.sendUnicastTo(ctx, u, m)
		}
		return "group updated: " + groupID

	case "msg":
		if len(rest) < 3 {
			return "usage: group msg <id> <body>"
		}
		groupID := rest[1]
		marker := "group msg " + groupID + " "
		idx := strings.Index(line, marker)
		body := strings.Join(rest[2:], " ")
		if idx >= 0 {
			body = line[idx+len(marker):]
		}
		recipients, err := d.grp.RecipientsForMessage(groupID)
		if err != nil {
			return "error: " + err.Error()
		}
		m := d.newMessage(codec.TypeGroupMessage, kv{"GROUP_ID", groupID}, kv{"CONTENT", body})
		for _, u := range recipients {
			_ = d.sendUnicastTo(ctx, u, m)
		}
		return "sent to group " + groupID

	default:
		return "usage: group create|update|msg ..."
	}
}

func (d *Dispatcher) cmdFileOffer(ctx context.Context, rest []string) string {
	if len(rest) < 2 {
		return "usage: file_offer <user> <path>"
	}
	receiver, path := rest[0], rest[1]
	data, err := os.ReadFile(path)
	if err != nil {
		return "error: " + lsnperr.Wrap(lsnperr.LocalIOError, "read "+path, err).Error()
	}
	fileID, err := filetransfer.NewFileID()
	if err != nil {
		return "error: " + err.Error()
	}
	filename := filepath.Base(path)
	cfg := filetransfer.Config{
		ChunkSize:    d.cfg.FileChunkSize,
		Window:       d.cfg.FileWindow,
		MaxRetries:   d.cfg.FileMaxRetries,
		ChunkTimeout: d.cfg.FileChunkTimeout,
		IdleTimeout:  d.cfg.FileIdleTimeout,
	}
	tr := filetransfer.OfferOutbound(fileID, d.self, receiver, filename, int64(len(data)), cfg)
	d.transfers.Store(fileID, tr)

	offer := d.newMessage(codec.TypeFileOffer,
		kv{"FILE_ID", fileID},
		kv{"FILENAME", filename},
		kv{"SIZE", formatEpoch(int64(len(data)))},
		kv{"CHUNK_SIZE", formatEpoch(int64(cfg.ChunkSize))},
		kv{"TOTAL_CHUNKS", formatEpoch(int64(tr.TotalChunks))},
	)
	if err := d.sendUnicastTo(ctx, receiver, offer); err != nil {
		return "error: " + err.Error()
	}

	go d.awaitAcceptAndSend(ctx, tr, receiver, data)
	return "offered " + filename + " to " + receiver + " (file_id " + fileID + ")"
}

// awaitAcceptAndSend polls for the receiver's FILE_ACCEPT and, once it
// arrives, streams the file (spec.md §4.7 step 2-3). Polling — rather
// than a channel wired through handleFileAccept — keeps command
// execution and frame handling on independent goroutines without adding
// a second mutation path into Transfer.
func (d *Dispatcher) awaitAcceptAndSend(ctx context.Context, tr *filetransfer.Transfer, receiver string, data []byte) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tr.State() == filetransfer.StateAccepted {
				sender := unicastSender{d: d, receiver: receiver}
				chunkAt := func(seq int) []byte {
					start := seq * tr.ChunkSize
					end := start + tr.ChunkSize
					if end > len(data) {
						end = len(data)
					}
					return data[start:end]
				}
				if err := tr.SendChunks(ctx, sender, chunkAt); err != nil {
					d.log.Warn("file send failed", lsnplog.Fields{"file_id": tr.FileID, "error": err.Error()})
				}
				return
			}
			if tr.State() == filetransfer.StateCancelled {
				return
			}
		}
	}
}

func (d *Dispatcher) cmdFileAccept(ctx context.Context, rest []string) string {
	if len(rest) < 1 {
		return "usage: file_accept <file_id>"
	}
	fileID := rest[0]
	tr, ok := d.transfers.Load(fileID)
	if !ok {
		return "error: " + lsnperr.New(lsnperr.UnknownPeer, fileID).Error()
	}
	tr.Accept()
	m := d.newMessage(codec.TypeFileAccept, kv{"FILE_ID", fileID})
	if err := d.sendUnicastTo(ctx, tr.Sender, m); err != nil {
		return "error: " + err.Error()
	}
	return "accepted " + fileID
}

func (d *Dispatcher) cmdGameInvite(ctx context.Context, rest []string) string {
	if len(rest) < 1 {
		return "usage: tictactoe_invite <user>"
	}
	opponent := rest[0]
	gameID, err := game.NewGameID()
	if err != nil {
		return "error: " + err.Error()
	}
	s := game.Invite(gameID, d.self, opponent)
	d.games.Add(s)
	m := d.newMessage(codec.TypeTicTacToeInvite, kv{"GAME_ID", gameID})
	if err := d.sendUnicastTo(ctx, opponent, m); err != nil {
		return "error: " + err.Error()
	}
	return "invited " + opponent + " (game_id " + gameID + ")"
}

func (d *Dispatcher) cmdGameAccept(ctx context.Context, rest []string) string {
	if len(rest) < 1 {
		return "usage: tictactoe_accept <game_id>"
	}
	gameID := rest[0]
	s, ok := d.games.Lookup(gameID)
	if !ok {
		return "error: " + lsnperr.New(lsnperr.UnknownPeer, gameID).Error()
	}
	s.Accept()
	m := d.newMessage(codec.TypeTicTacToeAccept, kv{"GAME_ID", gameID})
	opponent := opponentOf(s, d.self)
	if err := d.sendUnicastTo(ctx, opponent, m); err != nil {
		return "error: " + err.Error()
	}
	return "game " + gameID + " started"
}

func opponentOf(s *game.Session, self string) string {
	if s.PlayerX == self {
		return s.PlayerO
	}
	return s.PlayerX
}

func (d *Dispatcher) cmdGameMove(ctx context.Context, rest []string) string {
	if len(rest) < 2 {
		return "usage: tictactoe_move <game_id> <pos 0..8>"
	}
	gameID := rest[0]
	pos, err := strconv.Atoi(rest[1])
	if err != nil {
		return "error: position must be an integer 0..8"
	}
	s, ok := d.games.Lookup(gameID)
	if !ok {
		return "error: " + lsnperr.New(lsnperr.UnknownPeer, gameID).Error()
	}
	seq, hasMoved := s.LastMoveSeq()
	if hasMoved {
		seq++
	} else {
		seq = 0
	}
	status, ended, err := s.ApplyMove(d.self, pos, seq)
	if err != nil {
		return "error: " + err.Error()
	}
	opponent := opponentOf(s, d.self)
	m := d.newMessage(codec.TypeTicTacToeMove, kv{"GAME_ID", gameID}, kv{"POSITION", rest[1]}, kv{"MOVE_SEQ", formatEpoch(int64(seq))})
	if err := d.sendUnicastTo(ctx, opponent, m); err != nil {
		return "error: " + err.Error()
	}
	if ended {
		d.announceGameEnd(s, gameID, d.self, status)
	} else {
		s.RecordSentMove(seq, pos)
	}
	return "move played"
}
