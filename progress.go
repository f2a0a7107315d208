// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import "time"

// Progress is a point-in-time snapshot of a task's transfer state.
type Progress struct {
	Downloaded  int64
	Total       int64
	RateBPS     float64
	Remaining   time.Duration
	Percentage  float64
}

// computeProgress derives rate, remaining time, and percentage from raw
// byte counters and elapsed wall time, per the formulas: rate =
// downloaded/elapsed; remaining = max(0, (total-downloaded)/rate), zero
// when the rate is non-positive or the transfer is already complete;
// percentage = downloaded/total*100, capped at 100.
func computeProgress(downloaded, total int64, elapsed time.Duration) Progress {
	p := Progress{Downloaded: downloaded, Total: total}

	secs := elapsed.Seconds()
	if secs > 0 {
		p.RateBPS = float64(downloaded) / secs
	}

	if total > 0 {
		p.Percentage = float64(downloaded) / float64(total) * 100
		if p.Percentage > 100 {
			p.Percentage = 100
		}
	}

	remainingBytes := total - downloaded
	if p.RateBPS > 0 && remainingBytes > 0 {
		p.Remaining = time.Duration(float64(remainingBytes) / p.RateBPS * float64(time.Second))
	}

	return p
}
