// Package alignment estimates the offset between a captured microphone take
// and the reference it was sung against, and maps stream times onto the
// exercise clock.
package alignment

// Model maps microphone and reference stream times onto exercise time.
//
// MicOffsetSec is signed: positive means the microphone is late, so events
// in the capture appear after the reference instant they belong to.
// Subtracting it moves capture times back onto the reference clock.
type Model struct {
	MicOffsetSec float64 `json:"mic_offset_sec"`
	LeadInSec    float64 `json:"lead_in_sec"`
}

// MicPositionToExerciseTime maps a capture stream position, in seconds since
// the capture started, to exercise time: pos - MicOffsetSec - LeadInSec.
func (m Model) MicPositionToExerciseTime(pos float64) float64 {
	return pos - m.MicOffsetSec - m.LeadInSec
}

// MicTimeToExerciseTime removes the microphone offset from a capture time
// already expressed relative to the end of the lead-in.
func (m Model) MicTimeToExerciseTime(t float64) float64 {
	return t - m.MicOffsetSec
}

// RefPositionToExerciseTime maps a reference stream position to exercise
// time. The reference only carries the lead-in.
func (m Model) RefPositionToExerciseTime(pos float64) float64 {
	return pos - m.LeadInSec
}

// ExerciseTimeToMicPosition is the inverse of MicPositionToExerciseTime.
func (m Model) ExerciseTimeToMicPosition(t float64) float64 {
	return t + m.MicOffsetSec + m.LeadInSec
}

// ExerciseTimeToRefPosition is the inverse of RefPositionToExerciseTime.
func (m Model) ExerciseTimeToRefPosition(t float64) float64 {
	return t + m.LeadInSec
}

// OffsetMs returns MicOffsetSec in milliseconds.
func (m Model) OffsetMs() float64 {
	return m.MicOffsetSec * 1000
}
