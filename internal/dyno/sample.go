package dyno

import (
	"strconv"
	"strings"
)

// RawSample is one parsed sensor line: "now_us,last_rev_us,period_us[,...]".
type RawSample struct {
	NowMicros     int64 `json:"now_us"`
	LastRevMicros int64 `json:"last_rev_us"`
	HasLastRev    bool  `json:"-"`
	PeriodMicros  int64 `json:"period_us"`
}

// ParseLine parses a sensor line. The second return value is false when the
// line must be skipped (fewer than 3 fields or a non-integer period).
// Fields 0 and 1 are informational; a garbled value there does not drop the line.
func ParseLine(line string) (RawSample, bool) {
	line = strings.TrimSpace(cleanLine(line))
	if line == "" {
		return RawSample{}, false
	}

	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return RawSample{}, false
	}

	period, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil {
		return RawSample{}, false
	}

	s := RawSample{PeriodMicros: period}
	if v, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64); err == nil {
		s.NowMicros = v
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64); err == nil {
		s.LastRevMicros = v
		s.HasLastRev = true
	}
	return s, true
}

// Stalled reports whether the gap since the last revolution exceeds twice the
// reported period, meaning the roller halted after the period was printed.
func (s RawSample) Stalled() bool {
	if !s.HasLastRev || s.PeriodMicros <= 0 {
		return false
	}
	return s.NowMicros-s.LastRevMicros > 2*s.PeriodMicros
}

// cleanLine drops bytes that are not valid UTF-8 as well as NUL bytes, which
// show up on the wire when the board resets mid-line.
func cleanLine(line string) string {
	line = strings.ToValidUTF8(line, "")
	if strings.IndexByte(line, 0) >= 0 {
		line = strings.ReplaceAll(line, "\x00", "")
	}
	return line
}
