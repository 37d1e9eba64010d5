package scoring

import "github.com/RyanBlaney/sonido-vocal/melody"

// Tendency summarizes whether a singer leans sharp or flat.
type Tendency string

const (
	TendencyNeutral Tendency = "neutral"
	TendencySharp   Tendency = "sharp"
	TendencyFlat    Tendency = "flat"
)

// SegmentScore is the result for one reference segment.
type SegmentScore struct {
	Index   int            `json:"index"`
	Segment melody.Segment `json:"segment"`

	// Frames counts every frame mapped into the segment span, voiced or not.
	Frames int `json:"frames"`
	Voiced int `json:"voiced"`
	Hits   int `json:"hits"`

	HitFraction float64 `json:"hit_fraction"`
	// Cents errors average over voiced frames only; 0 without any.
	AvgCentsError    float64 `json:"avg_cents_error"`
	AvgAbsCentsError float64 `json:"avg_abs_cents_error"`
}

// Result is the score of one take.
type Result struct {
	// Overall is the weighted mean hit fraction scaled to [0,100].
	Overall  float64        `json:"overall"`
	Segments []SegmentScore `json:"segments"`
	// OffsetMs is the microphone offset the frames were mapped with.
	OffsetMs float64 `json:"offset_ms"`

	Tendency      Tendency `json:"tendency"`
	AvgCentsError float64  `json:"avg_cents_error"`
	// WithinTolerance is the share of voiced in-segment frames that hit.
	WithinTolerance float64 `json:"within_tolerance"`
	// FramesScored counts frames that fell inside any segment.
	FramesScored int `json:"frames_scored"`
}
