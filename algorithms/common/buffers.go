package common

// Window is one analysis window cut from a stream.
type Window struct {
	Samples []float64
	// Start is the stream position of Samples[0].
	Start int64
	// Valid is the number of real samples; the rest is zero padding.
	Valid int
}

// SlidingWindow implements a sliding window for frame-based processing. It
// tracks the stream position of every emitted window so callers can timestamp
// analysis results.
type SlidingWindow struct {
	buffer     []float64
	windowSize int
	hopSize    int
	writePos   int
	// position of buffer[0] in the stream
	bufferStart int64
	emitted     bool
}

// NewSlidingWindow creates a new sliding window
func NewSlidingWindow(windowSize, hopSize int) *SlidingWindow {
	return &SlidingWindow{
		buffer:     make([]float64, windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
	}
}

// Seek sets the stream position of the next sample written. It only takes
// effect while the window is empty.
func (sw *SlidingWindow) Seek(position int64) {
	if sw.writePos == 0 && !sw.emitted {
		sw.bufferStart = position
	}
}

// AddSamples adds samples and returns the windows completed by them.
func (sw *SlidingWindow) AddSamples(samples []float64) []Window {
	var windows []Window

	for _, sample := range samples {
		sw.buffer[sw.writePos] = sample
		sw.writePos++

		if sw.writePos < sw.windowSize {
			continue
		}

		frame := make([]float64, sw.windowSize)
		copy(frame, sw.buffer)
		windows = append(windows, Window{Samples: frame, Start: sw.bufferStart, Valid: sw.windowSize})
		sw.emitted = true

		if sw.hopSize < sw.windowSize {
			// Overlap: shift buffer left by hopSize
			copy(sw.buffer, sw.buffer[sw.hopSize:])
			sw.writePos = sw.windowSize - sw.hopSize
		} else {
			sw.writePos = 0
		}
		sw.bufferStart += int64(sw.hopSize)
	}

	return windows
}

// Pending returns the number of buffered samples that are not yet part of an
// emitted window.
func (sw *SlidingWindow) Pending() int {
	if !sw.emitted {
		return sw.writePos
	}
	overlap := max(sw.windowSize-sw.hopSize, 0)
	return max(sw.writePos-overlap, 0)
}

// Flush returns the trailing partial window zero-padded to the window size
// when at least minSamples samples arrived after the last emitted window,
// and resets the window. The second return value is false when the tail was
// dropped.
func (sw *SlidingWindow) Flush(minSamples int) (Window, bool) {
	defer sw.Reset()

	if sw.Pending() == 0 || sw.Pending() < minSamples {
		return Window{}, false
	}

	frame := make([]float64, sw.windowSize)
	copy(frame, sw.buffer[:sw.writePos])
	return Window{Samples: frame, Start: sw.bufferStart, Valid: sw.writePos}, true
}

// Reset clears the sliding window
func (sw *SlidingWindow) Reset() {
	sw.writePos = 0
	sw.bufferStart = 0
	sw.emitted = false
	for i := range sw.buffer {
		sw.buffer[i] = 0.0
	}
}

// GetWindowSize returns the window size
func (sw *SlidingWindow) GetWindowSize() int {
	return sw.windowSize
}

// GetHopSize returns the hop size
func (sw *SlidingWindow) GetHopSize() int {
	return sw.hopSize
}
