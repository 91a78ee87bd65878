package cdr

import (
	"context"
	"strings"
	"testing"
	"time"
)

func hangupFields() map[string]string {
	return map[string]string{
		"Unique-ID":                 "call-1",
		"FreeSWITCH-Hostname":       "fs1.example.com",
		"Call-Direction":            "inbound",
		"Caller-Caller-ID-Number":   "1001",
		"Caller-Destination-Number": "2125551234",
		"Hangup-Cause":              "NORMAL_CLEARING",
		"variable_billsec":          "42",
		"variable_duration":         "45",
	}
}

func TestRecordCallDetail(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	if err := svc.RecordCallDetail(context.Background(), "call-1", hangupFields()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := repo.Records()
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	rec := records[0]
	if rec.CallID != "call-1" || rec.Node != "fs1.example.com" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Direction != "inbound" || rec.CallerIDNumber != "1001" || rec.Destination != "2125551234" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.HangupCause != "NORMAL_CLEARING" {
		t.Fatalf("hangup cause: got %q", rec.HangupCause)
	}
	if rec.BillSeconds != 42 {
		t.Fatalf("bill seconds: got %d, want 42", rec.BillSeconds)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Fatalf("created at: got %v, want %v", rec.CreatedAt, now)
	}
	if !strings.Contains(rec.Raw, `"Hangup-Cause":"NORMAL_CLEARING"`) {
		t.Fatalf("raw payload missing fields: %q", rec.Raw)
	}
}

func TestBillSecondsFallsBackToDuration(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	fields := hangupFields()
	delete(fields, "variable_billsec")
	if err := svc.RecordCallDetail(context.Background(), "call-1", fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.Records()[0].BillSeconds; got != 45 {
		t.Fatalf("bill seconds: got %d, want 45", got)
	}
}

func TestCallIDFallsBackToUniqueID(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.RecordCallDetail(context.Background(), "", hangupFields()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.Records()[0].CallID; got != "call-1" {
		t.Fatalf("call id: got %q, want %q", got, "call-1")
	}
}

func TestRecordWithoutAnyCallIDRejected(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.RecordCallDetail(context.Background(), "", map[string]string{"Hangup-Cause": "LOSE_RACE"})
	if err != ErrInvalidRecord {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if len(repo.Records()) != 0 {
		t.Fatalf("invalid record must not be appended")
	}
}
