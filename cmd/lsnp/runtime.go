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
	"fmt"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"golang.org/x/sync/errgroup"

	"github.com/nabbar/lsnp/internal/lsnpadmin"
	"github.com/nabbar/lsnp/internal/lsnpconfig"
	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/dispatcher"
	"github.com/nabbar/lsnp/pkg/transport"
)

// run wires one peer together — config, logger, transport, dispatcher,
// optional admin surface — and hands control to the REPL until ctx is
// canceled (Ctrl-C or the REPL's own "quit").
func run(ctx context.Context, opt startOptions) error {
	cfg, err := loadConfig(opt)
	if err != nil {
		return err
	}

	out := colorable.NewColorableStdout()
	log := lsnplog.New(out)
	log.SetVerbose(cfg.Verbose)

	notifyColor := color.New(color.FgCyan)
	notify := func(msg string) {
		notifyColor.Fprintln(out, msg)
	}

	tr, err := transport.New(transport.Config{ListenAddr: cfg.Addr(), Mode: cfg.Mode}, log)
	if err != nil {
		return fmt.Errorf("bind transport: %w", err)
	}

	d := dispatcher.New(opt.username, cfg, tr, log, notify)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })

	if cfg.AdminAddr != "" {
		metrics := lsnpadmin.NewMetrics()
		d.SetMetrics(metrics)
		admin, err := lsnpadmin.NewServer(cfg.AdminAddr, metrics, d, log)
		if err != nil {
			return fmt.Errorf("start admin surface: %w", err)
		}
		g.Go(func() error { return admin.Run(gctx) })
	}

	fmt.Fprintf(out, "lsnp: %s listening on %s (mode=%s) — type 'help' for commands\n", opt.username, tr.LocalAddr(), cfg.Mode)
	runREPL(gctx, d, out)

	if err := d.Shutdown(); err != nil {
		log.Warn("shutdown error", lsnplog.Fields{"error": err.Error()})
	}
	return g.Wait()
}

// loadConfig layers defaults, an optional YAML file, and the CLI flags
// (flags win), then validates the result.
func loadConfig(opt startOptions) (*lsnpconfig.Options, error) {
	var cfg *lsnpconfig.Options
	if opt.configFile != "" {
		loaded, err := lsnpconfig.Load(opt.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = lsnpconfig.Default()
	}

	cfg.Username = opt.username
	cfg.Mode = opt.mode
	cfg.IP = opt.ip
	if opt.port != 0 {
		cfg.Port = opt.port
	}
	if opt.adminAddr != "" {
		cfg.AdminAddr = opt.adminAddr
	}
	if opt.verbose {
		cfg.Verbose = true
	}

	if err := lsnpconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
