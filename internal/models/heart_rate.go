package models

import "time"

// HeartRateChunkSize is the number of readings per upload segment. The
// remote store expects exactly this size.
const HeartRateChunkSize = 150

type HeartRateReading struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	BPM       int       `json:"value" yaml:"value"`
}

// HeartRateSummary is stored on the session as garmin_data.
type HeartRateSummary struct {
	AvgHeartRate    int `json:"avg_heart_rate" yaml:"avg_heart_rate"`
	MinHeartRate    int `json:"min_heart_rate" yaml:"min_heart_rate"`
	MaxHeartRate    int `json:"max_heart_rate" yaml:"max_heart_rate"`
	Samples         int `json:"samples" yaml:"samples"`
	DurationSeconds int `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// SummarizeHeartRate computes avg/min/max over the whole stream; the average
// is truncated to whole bpm. ok is false for an empty stream.
func SummarizeHeartRate(readings []HeartRateReading) (HeartRateSummary, bool) {
	if len(readings) == 0 {
		return HeartRateSummary{}, false
	}
	summary := HeartRateSummary{
		MinHeartRate: readings[0].BPM,
		MaxHeartRate: readings[0].BPM,
		Samples:      len(readings),
	}
	sum := 0
	first, last := readings[0].Timestamp, readings[0].Timestamp
	for _, r := range readings {
		sum += r.BPM
		summary.MinHeartRate = min(summary.MinHeartRate, r.BPM)
		summary.MaxHeartRate = max(summary.MaxHeartRate, r.BPM)
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	summary.AvgHeartRate = sum / len(readings)
	summary.DurationSeconds = int(last.Sub(first) / time.Second)
	return summary, true
}

// ChunkReadings splits readings into ordered chunks of at most size
// elements. Concatenating the chunks reproduces the input.
func ChunkReadings(readings []HeartRateReading, size int) [][]HeartRateReading {
	if size <= 0 {
		panic("ChunkReadings: size must be > 0")
	}
	chunks := make([][]HeartRateReading, 0, (len(readings)+size-1)/size)
	for start := 0; start < len(readings); start += size {
		end := min(start+size, len(readings))
		chunks = append(chunks, readings[start:end:end])
	}
	return chunks
}
