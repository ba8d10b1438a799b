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

// Package lsnpconfig loads the peer runtime parameters (spec.md §4.2-§4.9)
// from defaults, an optional YAML file, and the environment, the way the
// teacher's config/viper packages layer sources over a validated struct.
package lsnpconfig

import (
	"net"
	"strconv"
	"time"
)

// Options holds every tunable named in spec.md. Struct tags mirror the
// teacher's convention of tagging one field for json/yaml/mapstructure at
// once so the same struct serves viper.Unmarshal and a YAML default file.
type Options struct {
	Username string `json:"username" yaml:"username" mapstructure:"username" validate:"required"`
	Mode     string `json:"mode" yaml:"mode" mapstructure:"mode" validate:"required,oneof=simulate broadcast"`
	IP       string `json:"ip" yaml:"ip" mapstructure:"ip" validate:"required"`

	// ListenAddr, when set, overrides IP:Port entirely (spec.md §9 open
	// question on loopback-binding portability).
	ListenAddr string `json:"listenAddr,omitempty" yaml:"listenAddr,omitempty" mapstructure:"listenAddr,omitempty"`
	Port       int    `json:"port" yaml:"port" mapstructure:"port" validate:"required"`

	PresenceInterval time.Duration `json:"presenceInterval" yaml:"presenceInterval" mapstructure:"presenceInterval"`
	PruneInterval    time.Duration `json:"pruneInterval" yaml:"pruneInterval" mapstructure:"pruneInterval"`
	PeerTTL          time.Duration `json:"peerTTL" yaml:"peerTTL" mapstructure:"peerTTL"`

	FileChunkSize    int           `json:"fileChunkSize" yaml:"fileChunkSize" mapstructure:"fileChunkSize"`
	FileWindow       int           `json:"fileWindow" yaml:"fileWindow" mapstructure:"fileWindow"`
	FileMaxRetries   int           `json:"fileMaxRetries" yaml:"fileMaxRetries" mapstructure:"fileMaxRetries"`
	FileChunkTimeout time.Duration `json:"fileChunkTimeout" yaml:"fileChunkTimeout" mapstructure:"fileChunkTimeout"`
	FileIdleTimeout  time.Duration `json:"fileIdleTimeout" yaml:"fileIdleTimeout" mapstructure:"fileIdleTimeout"`

	GameMoveRetries  int           `json:"gameMoveRetries" yaml:"gameMoveRetries" mapstructure:"gameMoveRetries"`
	GameMoveInterval time.Duration `json:"gameMoveInterval" yaml:"gameMoveInterval" mapstructure:"gameMoveInterval"`

	TokenClockSkew  time.Duration `json:"tokenClockSkew" yaml:"tokenClockSkew" mapstructure:"tokenClockSkew"`
	TokenDefaultTTL time.Duration `json:"tokenDefaultTTL" yaml:"tokenDefaultTTL" mapstructure:"tokenDefaultTTL"`

	// AvatarInlineCap bounds inline PROFILE avatar bytes so the frame stays
	// under the 8 KiB datagram cap (spec.md §9).
	AvatarInlineCap int `json:"avatarInlineCap" yaml:"avatarInlineCap" mapstructure:"avatarInlineCap"`

	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`

	// AdminAddr, when set, binds the optional loopback-only debug HTTP
	// server (SPEC_FULL.md §C.2: "/debug/state", "/metrics"). Empty
	// disables it — off by default, since the core protocol has no
	// persistence or external-exposure goals.
	AdminAddr string `json:"adminAddr,omitempty" yaml:"adminAddr,omitempty" mapstructure:"adminAddr,omitempty"`
}

// Default returns the spec.md-mandated defaults (§4.2, §4.7-§4.9).
func Default() *Options {
	return &Options{
		Mode:             "simulate",
		Port:             50999,
		PresenceInterval: 30 * time.Second,
		PruneInterval:    60 * time.Second,
		PeerTTL:          90 * time.Second,
		FileChunkSize:    1024,
		FileWindow:       8,
		FileMaxRetries:   5,
		FileChunkTimeout: time.Second,
		FileIdleTimeout:  60 * time.Second,
		GameMoveRetries:  3,
		GameMoveInterval: 2 * time.Second,
		TokenClockSkew:   60 * time.Second,
		TokenDefaultTTL:  300 * time.Second,
		AvatarInlineCap:  5 * 1024,
	}
}

// Addr resolves the socket address to bind: ListenAddr if set, else IP:Port.
func (o *Options) Addr() string {
	if o.ListenAddr != "" {
		return o.ListenAddr
	}
	return net.JoinHostPort(o.IP, strconv.Itoa(o.Port))
}
