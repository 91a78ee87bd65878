package fsnode

import (
	"strconv"
	"strings"
)

// Status is the structured form of the switch's status report.
type Status struct {
	// UptimeMicro is the switch uptime in microseconds.
	UptimeMicro int64

	SessionsSince int64

	// SessionsPerThirty is the sessions-per-second figure the switch
	// reports over its thirty-second rate window.
	SessionsPerThirty int64

	SessionsMax int64

	// CPU is reported verbatim; the switch prints it as idle percentage.
	CPU string
}

// Microsecond weights for the uptime units.
const (
	microsPerMilli  = int64(1000)
	microsPerSecond = 1000 * microsPerMilli
	microsPerMinute = 60 * microsPerSecond
	microsPerHour   = 60 * microsPerMinute
	microsPerDay    = 24 * microsPerHour
	microsPerYear   = 365 * microsPerDay
)

// ParseStatus extracts uptime and session metrics from raw status text. It
// is deliberately tolerant: unrecognized lines are skipped and missing
// metrics stay zero. It never fails.
func ParseStatus(text string) Status {
	var st Status
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "UP "):
			st.UptimeMicro = parseUptime(strings.TrimPrefix(line, "UP "))
		case strings.Contains(line, "session(s) since startup"):
			st.SessionsSince = leadingInt(line)
		case strings.Contains(line, "session(s) per Sec"):
			st.SessionsPerThirty = leadingInt(line)
		case strings.Contains(line, "session(s) max"):
			st.SessionsMax = leadingInt(line)
		case strings.Contains(line, "idle cpu"):
			if i := strings.LastIndex(line, "/"); i >= 0 {
				st.CPU = strings.TrimSpace(line[i+1:])
			}
		default:
			if st.CPU == "" && isDecimal(line) {
				st.CPU = line
			}
		}
	}
	return st
}

// parseUptime sums comma-separated "<n> <unit>" segments into microseconds.
func parseUptime(rest string) int64 {
	var total int64
	for _, segment := range strings.Split(rest, ",") {
		fields := strings.Fields(strings.TrimSpace(segment))
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSuffix(fields[1], "s") {
		case "year":
			total += n * microsPerYear
		case "day":
			total += n * microsPerDay
		case "hour":
			total += n * microsPerHour
		case "minute":
			total += n * microsPerMinute
		case "second":
			total += n * microsPerSecond
		case "millisecond":
			total += n * microsPerMilli
		case "microsecond":
			total += n
		}
	}
	return total
}

func leadingInt(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func isDecimal(line string) bool {
	if line == "" {
		return false
	}
	_, err := strconv.ParseFloat(line, 64)
	return err == nil
}
