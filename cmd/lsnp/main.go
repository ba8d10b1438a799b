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

// Command lsnp is the CLI adapter for the LSNP peer (spec.md §6): it
// parses startup arguments, boots one Dispatcher, and hands the terminal
// to an interactive REPL that feeds lines into Dispatcher.Execute.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lsnp:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opt startOptions

	cmd := &cobra.Command{
		Use:   "lsnp <username>",
		Short: "Local Social Networking Protocol peer",
		Long: "lsnp starts one LSNP peer: a UDP socket, the Presence Engine,\n" +
			"and an interactive command REPL (spec.md §6).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt.username = args[0]
			return run(cmd.Context(), opt)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opt.mode, "mode", "simulate", "transport mode: simulate (loopback aliasing) or broadcast")
	f.StringVar(&opt.ip, "ip", "127.0.0.1", "local bind IP")
	f.IntVar(&opt.port, "port", 0, "local bind port (0 keeps the config/default port)")
	f.StringVar(&opt.configFile, "config", "", "optional YAML config file (lsnpconfig.Load)")
	f.StringVar(&opt.adminAddr, "admin-addr", "", "optional loopback-only debug HTTP address, e.g. 127.0.0.1:9090")
	f.BoolVarP(&opt.verbose, "verbose", "v", false, "log every inbound/outbound frame")

	return cmd
}

// startOptions carries the flags newRootCmd binds through to run.
type startOptions struct {
	username   string
	mode       string
	ip         string
	port       int
	configFile string
	adminAddr  string
	verbose    bool
}
