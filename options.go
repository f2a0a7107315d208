// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"time"

	"golang.org/x/time/rate"

	"hyperfetch/internal/pathplan"
)

// Options configures an Engine. DefaultOptions returns the documented
// defaults. New and UpdateOptions fill an empty SavePath, a zero PathPolicy
// and zero or negative Timeout, MaxRedirects, Concurrency, BufferSize and
// ProgressInterval from those defaults (and a negative MaxRetries); boolean
// fields and a zero MaxRetries keep the value given, so a zero-value
// Options has CreateDirs, TLSVerify and EnableRange false and no retries.
type Options struct {
	SavePath   string
	CreateDirs bool
	PathPolicy pathplan.Policy

	Headers   []Header
	UserAgent string

	Timeout      time.Duration
	MaxRedirects int
	TLSVerify    bool

	Concurrency  int
	ChunkSize    int // 0 means auto (buffer-sized reads)
	EnableRange  bool
	MaxRetries   int
	Proxy        string

	ResumeDownload   bool
	BufferSize       int
	ProgressInterval time.Duration

	// RateLimiter and PerConnectionRateLimiter are an optional best-effort
	// pacing pass layered above the core: nil by default, so the engine
	// enforces no bandwidth shaping unless the caller opts in explicitly.
	RateLimiter             *rate.Limiter
	PerConnectionRateLimiter *rate.Limiter
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		SavePath:         "downloads",
		CreateDirs:       true,
		PathPolicy:       pathplan.DefaultPolicy(),
		Timeout:          30 * time.Second,
		MaxRedirects:     5,
		TLSVerify:        true,
		Concurrency:      4,
		EnableRange:      true,
		MaxRetries:       3,
		ResumeDownload:   false,
		BufferSize:       8192,
		ProgressInterval: 500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SavePath == "" {
		o.SavePath = d.SavePath
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = d.MaxRedirects
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.PathPolicy == (pathplan.Policy{}) {
		o.PathPolicy = d.PathPolicy
	}
	return o
}
