// SPDX-License-Identifier: LGPL-3.0-or-later

package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type ProgressReporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	SetTotal(total int64)
	Add(count int64)
	Close() error
	Describe(description string)
}

type BarProgress struct {
	bar *progressbar.ProgressBar
}

func NewBarProgress(writer io.Writer, options ...progressbar.Option) *BarProgress {
	defaultOptions := []progressbar.Option{
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("bytes"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	}

	// Apply custom options
	allOptions := append(defaultOptions, options...)

	return &BarProgress{
		bar: progressbar.NewOptions64(0, allOptions...),
	}
}

func (b *BarProgress) Start(total int64, description string) {
	if b == nil || b.bar == nil {
		return
	}
	b.bar.ChangeMax64(total)
	b.bar.Describe(description)
	b.bar.Reset()
}

func (b *BarProgress) Update(current int64) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Set64(current)
}

func (b *BarProgress) Add(count int64) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add64(count)
}

func (b *BarProgress) Finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}

func (b *BarProgress) SetTotal(total int64) {
	if b == nil || b.bar == nil {
		return
	}
	b.bar.ChangeMax64(total)
}

func (b *BarProgress) Describe(description string) {
	if b == nil || b.bar == nil {
		return
	}
	b.bar.Describe(description)
}

func (b *BarProgress) Close() error {
	if b == nil || b.bar == nil {
		return nil
	}
	return b.bar.Close()
}

// NewDownloadProgress creates a progress bar optimized for file downloads
func NewDownloadProgress(writer io.Writer, filename string, totalSize int64) *BarProgress {
	bar := progressbar.NewOptions64(totalSize,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s:", filename)),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(writer, "\n")
		}),
	)
	return &BarProgress{bar: bar}
}

// MultiProgress manages one BarProgress per download task, keyed by task
// id so a caller can start, update, and retire bars independently as tasks
// come and go over the life of a batch.
type MultiProgress struct {
	mu   sync.Mutex
	bars map[uint32]*BarProgress
	done chan struct{}
}

func NewMultiProgress() *MultiProgress {
	return &MultiProgress{
		bars: make(map[uint32]*BarProgress),
		done: make(chan struct{}),
	}
}

// AddBar registers bar under taskID, replacing any bar already there.
func (m *MultiProgress) AddBar(taskID uint32, bar *BarProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[taskID] = bar
}

// Get returns the bar registered for taskID, if any.
func (m *MultiProgress) Get(taskID uint32) (*BarProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bar, ok := m.bars[taskID]
	return bar, ok
}

// Remove closes and forgets the bar registered for taskID.
func (m *MultiProgress) Remove(taskID uint32) {
	m.mu.Lock()
	bar, ok := m.bars[taskID]
	delete(m.bars, taskID)
	m.mu.Unlock()
	if ok {
		_ = bar.Close()
	}
}

// Len reports how many bars are currently registered.
func (m *MultiProgress) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bars)
}

func (m *MultiProgress) Wait() {
	<-m.done
}

// Close closes every registered bar and unblocks any Wait call.
func (m *MultiProgress) Close() {
	m.mu.Lock()
	for _, bar := range m.bars {
		_ = bar.Close()
	}
	m.bars = make(map[uint32]*BarProgress)
	m.mu.Unlock()
	close(m.done)
}
