package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/loadkit/internal/record"
)

const timeLayout = time.RFC3339Nano

// encodeRecord returns the canonical JSON body of r and its content hash.
func encodeRecord(r record.Record) (body, hash string, err error) {
	data, err := record.MarshalCanonical(r)
	if err != nil {
		return "", "", fmt.Errorf("marshal record: %w", err)
	}
	hash, err = r.Hash()
	if err != nil {
		return "", "", err
	}
	return string(data), hash, nil
}

// decodeRecord parses a stored body. Numbers in Data come back as float64.
func decodeRecord(body string) (record.Record, error) {
	var r record.Record
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return record.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
