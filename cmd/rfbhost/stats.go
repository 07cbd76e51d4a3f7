package main

import (
	"context"
	"time"

	"github.com/matst80/rfbhost/internal/host"
	"github.com/matst80/rfbhost/internal/state"
)

// Stats is the document served at /api/state.
type Stats struct {
	Display     int            `json:"display"`
	DisplayName string         `json:"display_name"`
	Addr        string         `json:"addr"`
	Shared      bool           `json:"shared"`
	Running     bool           `json:"running"`
	Registered  int            `json:"registered"`
	Active      int            `json:"active"`
	Total       int64          `json:"total"`
	Sessions    []state.Record `json:"sessions"`
	Error       string         `json:"error,omitempty"`
	Now         string         `json:"now"`
}

func collectStats(ctx context.Context, h *host.Host, s state.Store) Stats {
	st := s.Stats()
	out := Stats{
		Display:     h.Display(),
		DisplayName: h.DisplayName(),
		Addr:        h.Addr().String(),
		Shared:      h.Shareable(),
		Running:     h.Running(),
		Registered:  len(h.Sessions()),
		Active:      st.Active,
		Total:       st.Total,
		Sessions:    []state.Record{},
		Error:       errString(h.Err()),
		Now:         time.Now().UTC().Format(time.RFC3339),
	}
	if recs, err := s.List(ctx); err == nil {
		out.Sessions = recs
	}
	return out
}
