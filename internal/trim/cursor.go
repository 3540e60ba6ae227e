package trim

import (
	"github.com/bluenviron/mediatrim/internal/track"
)

// cursor iterates over the samples of a track inside the window.
// Each track has its own reader, therefore cursors never affect each other.
type cursor struct {
	reader     *track.Reader
	outIndex   int
	isVideo    bool
	baseTimeUs int64
	endUs      int64
	done       bool
}

// align seeks the closest sync sample before startUs and skips
// samples until one at or after startUs is found.
// The timestamp of this sample becomes the origin of the output.
func (c *cursor) align(startUs int64) error {
	err := c.reader.SeekTo(startUs, track.SeekPreviousSync)
	if err != nil {
		return err
	}

	for {
		t, ok := c.reader.SampleTimeUs()
		if !ok {
			c.done = true
			return nil
		}

		if t >= startUs {
			c.baseTimeUs = t
			return nil
		}

		c.reader.Advance()
	}
}

// peek returns the output timestamp of the next sample.
func (c *cursor) peek() (int64, bool) {
	if c.done {
		return 0, false
	}

	t, ok := c.reader.SampleTimeUs()
	if !ok || t > c.endUs {
		c.done = true
		return 0, false
	}

	return t - c.baseTimeUs, true
}

// pickCursor returns the cursor whose next sample comes first in the output.
// Ties are won by the first cursor.
func pickCursor(cursors []*cursor) *cursor {
	var best *cursor
	var bestTime int64

	for _, c := range cursors {
		t, ok := c.peek()
		if !ok {
			continue
		}

		if best == nil || t < bestTime {
			best = c
			bestTime = t
		}
	}

	return best
}
