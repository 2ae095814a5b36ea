package database

import (
	"encoding/json"
	"fmt"

	"github.com/nao1215/linkforensics/internal/model"
)

// merge combines an incoming capture with the stored record.
// Session progress recorded by updates is never lost.
func merge(stored, incoming *model.ForensicRecord) *model.ForensicRecord {
	out := incoming.Clone()
	if stored == nil {
		return out
	}

	out.Session.Downloaded = stored.Session.Downloaded || incoming.Session.Downloaded
	if stored.Session.DownloadTime != nil {
		t := *stored.Session.DownloadTime
		out.Session.DownloadTime = &t
	}
	if stored.Session.End != nil {
		t := *stored.Session.End
		out.Session.End = &t
	}
	if out.Session.PageVisibility == "" {
		out.Session.PageVisibility = stored.Session.PageVisibility
	}
	if len(stored.FocusEvents) > len(incoming.FocusEvents) {
		out.FocusEvents = append([]model.FocusEvent(nil), stored.FocusEvents...)
	}
	if !stored.CreatedAt.IsZero() {
		out.CreatedAt = stored.CreatedAt
	}
	return out
}

func encodeRecord(rec *model.ForensicRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*model.ForensicRecord, error) {
	var rec model.ForensicRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if rec.FocusEvents == nil {
		rec.FocusEvents = []model.FocusEvent{}
	}
	return &rec, nil
}
