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

package main

import (
	"context"
	"io"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/nabbar/lsnp/pkg/dispatcher"
)

// pathExpandingCommands names the commands whose last argument is a
// filesystem path a user is likely to type with a leading "~" (profile's
// optional avatar path, file_offer's source path).
var pathExpandingCommands = map[string]bool{
	"profile":    true,
	"file_offer": true,
}

// expandPath replaces a leading "~" in line's final argument with the
// user's home directory, for the commands that take a path argument. Left
// alone if the line doesn't match — homedir.Expand is a no-op on anything
// not starting with "~".
func expandPath(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 || !pathExpandingCommands[fields[0]] {
		return line
	}
	last := fields[len(fields)-1]
	expanded, err := homedir.Expand(last)
	if err != nil {
		return line
	}
	fields[len(fields)-1] = expanded
	return strings.Join(fields, " ")
}

// runREPL feeds lines into d.Execute until ctx is canceled or the user
// types "quit"/"exit" (spec.md §6). go-prompt owns the terminal; the
// reply to every accepted line is written to out.
func runREPL(ctx context.Context, d *dispatcher.Dispatcher, out io.Writer) {
	executor := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if line == "quit" || line == "exit" {
			return
		}

		line = expandPath(line)
		reply := d.Execute(ctx, line)
		io.WriteString(out, reply+"\n")

		if strings.HasPrefix(line, "file_offer ") {
			if fileID, ok := extractFileID(reply); ok {
				go trackTransfer(ctx, d, out, fileID)
			}
		}
	}

	completer := func(doc prompt.Document) []prompt.Suggest {
		suggestions := []prompt.Suggest{
			{Text: "profile", Description: "update own profile"},
			{Text: "follow", Description: "follow a user"},
			{Text: "unfollow", Description: "unfollow a user"},
			{Text: "post", Description: "broadcast a post"},
			{Text: "dm", Description: "direct message a user"},
			{Text: "like", Description: "like a post"},
			{Text: "group", Description: "create|update|msg a group"},
			{Text: "groups", Description: "list known groups"},
			{Text: "peers", Description: "list known peers"},
			{Text: "file_offer", Description: "offer a file to a user"},
			{Text: "file_accept", Description: "accept an incoming file"},
			{Text: "tictactoe_invite", Description: "invite a user to tic-tac-toe"},
			{Text: "tictactoe_move", Description: "make a tic-tac-toe move"},
			{Text: "quit", Description: "shut the peer down"},
		}
		return prompt.FilterHasPrefix(suggestions, doc.GetWordBeforeCursor(), true)
	}

	p := prompt.New(executor, completer,
		prompt.OptionPrefix("lsnp> "),
		prompt.OptionTitle("lsnp"),
	)

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

// extractFileID pulls the file_id back out of cmdFileOffer's reply string
// ("offered <name> to <user> (file_id <id>)") so the REPL can attach a
// progress bar to the transfer it just started.
func extractFileID(reply string) (string, bool) {
	const marker = "(file_id "
	i := strings.Index(reply, marker)
	if i < 0 {
		return "", false
	}
	rest := reply[i+len(marker):]
	return strings.TrimSuffix(rest, ")"), true
}

// trackTransfer renders an mpb progress bar against fileID until the
// transfer completes, is no longer known, or ctx is canceled.
func trackTransfer(ctx context.Context, d *dispatcher.Dispatcher, out io.Writer, fileID string) {
	_, total, ok := d.TransferProgress(fileID)
	if !ok || total == 0 {
		return
	}

	p := mpb.New(mpb.WithOutput(out), mpb.WithWidth(40))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name(fileID+" ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d chunks")),
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	last := 0
	for {
		select {
		case <-ctx.Done():
			p.Wait()
			return
		case <-ticker.C:
			acked, _, ok := d.TransferProgress(fileID)
			if !ok {
				bar.SetCurrent(int64(total))
				p.Wait()
				return
			}
			bar.IncrBy(acked - last)
			last = acked
			if acked >= total {
				p.Wait()
				return
			}
		}
	}
}
