package temporal

// silenceFrameSec is the RMS frame used for silence gating, advanced by
// half a frame.
const silenceFrameSec = 0.025

// SilentRatio returns the share of frames whose RMS stays below threshold.
// An empty signal is entirely silent.
func SilentRatio(signal []float64, sampleRate int, threshold float64) float64 {
	if len(signal) == 0 || sampleRate <= 0 {
		return 1
	}

	frame := max(int(silenceFrameSec*float64(sampleRate)), 1)
	env := RMSEnvelope(signal, frame, max(frame/2, 1))

	silent := 0
	for _, v := range env {
		if v < threshold {
			silent++
		}
	}
	return float64(silent) / float64(len(env))
}

// IsSilent reports whether no frame of signal reaches threshold.
func IsSilent(signal []float64, sampleRate int, threshold float64) bool {
	return SilentRatio(signal, sampleRate, threshold) >= 1
}
