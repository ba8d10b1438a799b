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

package codec

import "github.com/nabbar/lsnp/internal/lsnperr"

// Known TYPEs (spec.md §3).
const (
	TypePing            = "PING"
	TypeProfile         = "PROFILE"
	TypePost            = "POST"
	TypeDM              = "DM"
	TypeFollow          = "FOLLOW"
	TypeUnfollow        = "UNFOLLOW"
	TypeLike            = "LIKE"
	TypeGroupCreate     = "GROUP_CREATE"
	TypeGroupUpdate     = "GROUP_UPDATE"
	TypeGroupMessage    = "GROUP_MESSAGE"
	TypeFileOffer       = "FILE_OFFER"
	TypeFileAccept      = "FILE_ACCEPT"
	TypeFileChunk       = "FILE_CHUNK"
	TypeFileComplete    = "FILE_COMPLETE"
	TypeTicTacToeInvite = "TICTACTOE_INVITE"
	TypeTicTacToeAccept = "TICTACTOE_ACCEPT"
	TypeTicTacToeMove   = "TICTACTOE_MOVE"
	TypeTicTacToeResult = "TICTACTOE_RESULT"
	TypeAck             = "ACK"
)

// requiredFields enumerates the fields each known TYPE must carry, per
// spec.md §4.1 ("Per-TYPE required fields are enumerated and validated at
// parse time").
var requiredFields = map[string][]string{
	TypePing:            {"USER_ID"},
	TypeProfile:         {"USER_ID", "DISPLAY_NAME", "STATUS"},
	TypePost:            {"USER_ID", "CONTENT", "TIMESTAMP", "TOKEN"},
	TypeDM:              {"USER_ID", "CONTENT", "TIMESTAMP", "TOKEN"},
	TypeFollow:          {"USER_ID", "TOKEN"},
	TypeUnfollow:        {"USER_ID", "TOKEN"},
	TypeLike:            {"USER_ID", "AUTHOR", "POST_TIMESTAMP"},
	TypeGroupCreate:     {"USER_ID", "GROUP_ID", "TITLE", "TOKEN"},
	TypeGroupUpdate:     {"USER_ID", "GROUP_ID", "MEMBERS", "TOKEN"},
	TypeGroupMessage:    {"USER_ID", "GROUP_ID", "CONTENT", "TOKEN"},
	TypeFileOffer:       {"USER_ID", "FILE_ID", "FILENAME", "SIZE", "CHUNK_SIZE", "TOTAL_CHUNKS", "TOKEN"},
	TypeFileAccept:      {"USER_ID", "FILE_ID", "TOKEN"},
	TypeFileChunk:       {"USER_ID", "FILE_ID", "SEQ", "DATA", "TOKEN"},
	TypeFileComplete:    {"USER_ID", "FILE_ID", "TOKEN"},
	TypeTicTacToeInvite: {"USER_ID", "GAME_ID", "TOKEN"},
	TypeTicTacToeAccept: {"USER_ID", "GAME_ID", "TOKEN"},
	TypeTicTacToeMove:   {"USER_ID", "GAME_ID", "POSITION", "MOVE_SEQ", "TOKEN"},
	TypeTicTacToeResult: {"USER_ID", "GAME_ID", "RESULT", "TOKEN"},
	TypeAck:             {"USER_ID", "FILE_ID", "SEQ"},
}

// IsKnownType reports whether typ has a required-field entry.
func IsKnownType(typ string) bool {
	_, ok := requiredFields[typ]
	return ok
}

// Validate checks m against its TYPE's required fields. Unknown TYPEs are
// not an error here — spec.md §4.1 says they are "delivered to the
// Dispatcher but flagged for verbose logging", so the Dispatcher is the
// one that decides what to do with UnknownType, not the codec.
func Validate(m *Message) error {
	typ := m.Type()
	req, ok := requiredFields[typ]
	if !ok {
		return nil
	}
	for _, f := range req {
		if _, present := m.Get(f); !present {
			return lsnperr.New(lsnperr.MissingField, f)
		}
	}
	return nil
}
