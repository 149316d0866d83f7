package report

import (
	"github.com/wacrm/wacrm/internal/store"
)

// Report is the organization dashboard payload.
type Report struct {
	Counts store.ReportCounts
	Volume []store.DayVolume
	// Broadcast delivery totals across all campaigns.
	BroadcastQueued int
	BroadcastSent   int
	BroadcastFailed int
}

// Service aggregates workspace-wide numbers for the reports view.
type Service struct {
	db *store.DB
}

// NewService creates a report service.
func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

// Overview builds the full dashboard report. volumeDays bounds the per-day
// message series.
func (s *Service) Overview(volumeDays int) (*Report, error) {
	counts, err := s.db.Report()
	if err != nil {
		return nil, err
	}
	volume, err := s.db.MessageVolumeByDay(volumeDays)
	if err != nil {
		return nil, err
	}

	r := &Report{Counts: *counts, Volume: volume}
	broadcasts, err := s.db.ListBroadcasts()
	if err != nil {
		return nil, err
	}
	for i := range broadcasts {
		r.BroadcastQueued += broadcasts[i].QueuedCount
		r.BroadcastSent += broadcasts[i].SentCount
		r.BroadcastFailed += broadcasts[i].FailedCount
	}
	return r, nil
}

// Volume returns only the per-day message series.
func (s *Service) Volume(days int) ([]store.DayVolume, error) {
	return s.db.MessageVolumeByDay(days)
}
