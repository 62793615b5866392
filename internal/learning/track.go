package learning

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/qchi/internal/roles"
)

// Track groups project learning logs by kind of work.
type Track string

const (
	TrackPhysics        Track = "physics"
	TrackWriting        Track = "writing"
	TrackCodingPlotting Track = "coding-plotting"
)

// DefaultTrack is used when nothing in the mode suggests another track.
const DefaultTrack = TrackPhysics

// Tracks returns every track in layout order.
func Tracks() []Track {
	return []Track{TrackPhysics, TrackWriting, TrackCodingPlotting}
}

// ParseTrack validates s. The empty string yields "" with no error so that
// callers can fall back to InferTrack.
func ParseTrack(s string) (Track, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, t := range Tracks() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown learning track %q (expected physics, writing, or coding-plotting)", s)
}

var (
	writingTokens = []string{"write", "draft", "manuscript", "paper", "lyx"}
	codingTokens  = []string{"plot", "code", "coding", "benchmark", "sweep", "simulate"}
)

// InferTrack picks a track from substrings of the canonical mode.
func InferTrack(mode string) Track {
	key := roles.CanonicalMode(mode)
	if containsAny(key, writingTokens) {
		return TrackWriting
	}
	if containsAny(key, codingTokens) {
		return TrackCodingPlotting
	}
	return DefaultTrack
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
