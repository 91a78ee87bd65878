package fsnode

import "testing"

func TestParseStatus(t *testing.T) {
	text := "UP 0 years, 10 days, 1 hour, 2 minutes, 3 seconds, 4 milliseconds, 5 microseconds\n" +
		"1000 session(s) since startup\n" +
		"5 session(s) per Sec out of max 30, peak 14, last 5min 12\n" +
		"100 session(s) max\n" +
		"min idle cpu 0.00/97.50\n"

	st := ParseStatus(text)

	wantUptime := int64(10)*microsPerDay +
		1*microsPerHour +
		2*microsPerMinute +
		3*microsPerSecond +
		4*microsPerMilli +
		5
	if st.UptimeMicro != wantUptime {
		t.Fatalf("uptime: got %d, want %d", st.UptimeMicro, wantUptime)
	}
	if st.SessionsSince != 1000 {
		t.Fatalf("sessions since: got %d, want 1000", st.SessionsSince)
	}
	if st.SessionsPerThirty != 5 {
		t.Fatalf("sessions per thirty: got %d, want 5", st.SessionsPerThirty)
	}
	if st.SessionsMax != 100 {
		t.Fatalf("sessions max: got %d, want 100", st.SessionsMax)
	}
	if st.CPU != "97.50" {
		t.Fatalf("cpu: got %q, want %q", st.CPU, "97.50")
	}
}

func TestParseStatusBareDecimalCPU(t *testing.T) {
	st := ParseStatus("UP 0 years, 0 days, 0 hours, 0 minutes, 1 second, 0 milliseconds, 0 microseconds\n0.50\n")
	if st.CPU != "0.50" {
		t.Fatalf("cpu: got %q, want %q", st.CPU, "0.50")
	}
	if st.UptimeMicro != microsPerSecond {
		t.Fatalf("uptime: got %d, want %d", st.UptimeMicro, microsPerSecond)
	}
}

func TestParseStatusSingularUnits(t *testing.T) {
	st := ParseStatus("UP 1 year, 1 day, 1 hour, 1 minute, 1 second, 1 millisecond, 1 microsecond")
	want := microsPerYear + microsPerDay + microsPerHour + microsPerMinute + microsPerSecond + microsPerMilli + 1
	if st.UptimeMicro != want {
		t.Fatalf("uptime: got %d, want %d", st.UptimeMicro, want)
	}
}

func TestParseStatusGarbage(t *testing.T) {
	for _, text := range []string{
		"",
		"complete nonsense\nmore nonsense",
		"UP soon",
		"UP x years, y days",
	} {
		st := ParseStatus(text)
		if st != (Status{}) {
			t.Fatalf("%q: expected zero status, got %+v", text, st)
		}
	}
}
