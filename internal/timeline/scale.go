package timeline

import (
	"math"
	"time"

	"github.com/gitviz/gitviz/internal/models"
)

// collisionStep is the minimum gap enforced between entries whose scaled
// offsets would otherwise collide or run backwards: one output time unit.
const collisionStep = time.Millisecond

// Scale maps merged events onto the playback clock. An event N days after
// the start date lands at N * secondsPerDay / timeScale seconds, floored
// to the millisecond. Events are assumed to arrive in merge order; an
// entry that would not advance the clock is nudged one step past its
// predecessor, so offsets are non-decreasing and distinct while the merge
// order is preserved exactly.
func Scale(events []models.CommitEvent, start time.Time, secondsPerDay, timeScale float64) []models.TimelineEntry {
	base := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	entries := make([]models.TimelineEntry, 0, len(events))
	var prev time.Duration
	for i, ev := range events {
		days := ev.Timestamp.Sub(base).Seconds() / 86400.0
		seconds := days * secondsPerDay / timeScale
		offset := time.Duration(math.Floor(seconds*1000)) * time.Millisecond

		if i > 0 && offset <= prev {
			offset = prev + collisionStep
		}
		prev = offset

		entries = append(entries, models.TimelineEntry{
			Offset: offset,
			Name:   ev.Author,
			Action: ev.Action,
			Path:   ev.Path,
		})
	}
	return entries
}
