package cdr

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Service turns a raw hangup-complete field set into a call detail record
// and hands it to the repository.
//
// IMPORTANT:
// - The repository MUST be append-only; records are never updated.
// - Callers treat recording as best-effort; a failed append is logged by the
//   caller, never retried here.

// Record is one call detail record.
type Record struct {
	ID             string    `json:"id" db:"id"`
	CallID         string    `json:"call_id" db:"call_id"`
	Node           string    `json:"node" db:"node"`
	Direction      string    `json:"direction" db:"direction"`
	CallerIDNumber string    `json:"caller_id_number" db:"caller_id_number"`
	Destination    string    `json:"destination" db:"destination"`
	HangupCause    string    `json:"hangup_cause" db:"hangup_cause"`
	BillSeconds    int       `json:"bill_seconds" db:"bill_seconds"`
	Raw            string    `json:"raw,omitempty" db:"raw"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Repository is the persistence contract for call detail records.
type Repository interface {
	Append(ctx context.Context, rec Record) error
}

var ErrInvalidRecord = errors.New("cdr: invalid record")

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// RecordCallDetail normalizes the event field set and appends the record.
// The full field set is kept as JSON alongside the normalized columns.
func (s *Service) RecordCallDetail(ctx context.Context, callID string, fields map[string]string) error {
	if s.repo == nil {
		return errors.New("cdr: repository not configured")
	}
	if callID == "" {
		callID = fields["Unique-ID"]
	}
	if callID == "" {
		return ErrInvalidRecord
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		raw = nil
	}

	bill, _ := strconv.Atoi(fields["variable_billsec"])
	if bill == 0 {
		bill, _ = strconv.Atoi(fields["variable_duration"])
	}

	return s.repo.Append(ctx, Record{
		CallID:         callID,
		Node:           fields["FreeSWITCH-Hostname"],
		Direction:      fields["Call-Direction"],
		CallerIDNumber: fields["Caller-Caller-ID-Number"],
		Destination:    fields["Caller-Destination-Number"],
		HangupCause:    fields["Hangup-Cause"],
		BillSeconds:    bill,
		Raw:            string(raw),
		CreatedAt:      s.clock().UTC(),
	})
}
