package nport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fundlens/nportd/internal/edgar"
	"github.com/fundlens/nportd/pkg/models"
)

// Event is one streamed milestone. Type is one of "metadata",
// "progress", "series", "warning", "error", "complete" or
// "cancelled"; the remaining fields are populated per type.
type Event struct {
	Type string `json:"type"`

	// metadata
	RegistrantName string `json:"registrant_name,omitempty"`
	LatestDate     string `json:"latest_date,omitempty"`
	TotalFilings   int    `json:"total_filings,omitempty"`

	// progress
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	Accession string `json:"accession,omitempty"`

	// series
	Index *int                      `json:"index,omitempty"`
	Data  *models.FilingGroupResult `json:"data,omitempty"`

	// warning / error / complete
	Message        string `json:"message,omitempty"`
	StatusCode     int    `json:"status_code,omitempty"`
	TotalProcessed int    `json:"total_processed,omitempty"`
	ProcessingTime string `json:"processing_time,omitempty"`
}

// Stream runs the aggregation pipeline for a CIK, emitting one event
// per milestone on the returned channel. The stream is registered in
// the task registry under taskID until it completes; a cancellation
// request is observed at the start of each filing iteration. The
// channel is closed when the stream ends for any reason.
func (s *Service) Stream(ctx context.Context, cik string, limit int, taskID string) <-chan Event {
	events := make(chan Event, 8)
	ctx = s.tasks.Register(ctx, taskID)

	go func() {
		defer close(events)
		defer s.tasks.Remove(taskID)
		s.stream(ctx, cik, limit, events)
	}()

	return events
}

// emit delivers an event unless the stream was cancelled. Reports
// whether the stream should keep going.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) stream(ctx context.Context, cik string, limit int, events chan<- Event) {
	start := time.Now()

	md, err := s.ResolveMetadata(ctx, cik)
	if err != nil {
		emit(ctx, events, errorEvent(err))
		return
	}

	total := len(md.LatestFilings)
	if !emit(ctx, events, Event{
		Type:           "metadata",
		RegistrantName: md.RegistrantName,
		LatestDate:     md.LatestDate,
		TotalFilings:   total,
	}) {
		return
	}

	processed := 0
	for idx, filing := range md.LatestFilings {
		if ctx.Err() != nil {
			sendCancelled(events)
			return
		}

		if !emit(ctx, events, Event{
			Type:      "progress",
			Current:   idx + 1,
			Total:     total,
			Accession: filing.Accession,
		}) {
			return
		}

		group, err := s.processFiling(ctx, cik, md, idx, filing, limit)
		if err != nil {
			if errors.Is(err, edgar.ErrBlocked) {
				// The block applies to every remaining fetch; end
				// the stream with the terminal error.
				log.Printf("Streaming: upstream blocked on filing %s, ending stream", filing.Accession)
				emit(ctx, events, errorEvent(err))
				return
			}
			// Other per-filing failures are surfaced as non-terminal
			// events; the stream moves on to the next filing.
			log.Printf("Streaming: error on filing %s: %v", filing.Accession, err)
			if !emit(ctx, events, Event{
				Type:      "error",
				Accession: filing.Accession,
				Message:   streamErrorMessage(err),
			}) {
				return
			}
			continue
		}
		if group == nil {
			if !emit(ctx, events, Event{
				Type:      "warning",
				Accession: filing.Accession,
				Message:   "No holdings found",
			}) {
				return
			}
			continue
		}

		index := processed
		if !emit(ctx, events, Event{Type: "series", Index: &index, Data: group}) {
			return
		}
		processed++

		// Brief pause so a slow consumer is not saturated.
		select {
		case <-time.After(s.streamDelay):
		case <-ctx.Done():
			sendCancelled(events)
			return
		}
	}

	emit(ctx, events, Event{
		Type:           "complete",
		TotalProcessed: processed,
		ProcessingTime: fmt.Sprintf("%.2fs", time.Since(start).Seconds()),
	})
}

// sendCancelled notifies the consumer without blocking; when the
// transport is already gone there is no one left to notify.
func sendCancelled(events chan<- Event) {
	select {
	case events <- Event{Type: "cancelled"}:
	default:
	}
}

func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, edgar.ErrTimeout):
		return "Request timeout"
	case edgar.IsDocumentUnavailable(err):
		return "Could not fetch HTML"
	default:
		return err.Error()
	}
}

// errorEvent maps a terminal pipeline error onto an error event with
// the HTTP status the non-streaming path would have returned.
func errorEvent(err error) Event {
	return Event{
		Type:       "error",
		Message:    err.Error(),
		StatusCode: StatusForError(err),
	}
}

// StatusForError maps pipeline errors onto HTTP status codes; the API
// layer and the streaming error events share this mapping.
func StatusForError(err error) int {
	var nf *NotFoundError
	var pe *ParseError
	switch {
	case errors.Is(err, edgar.ErrCIKNotFound), errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, edgar.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, edgar.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, edgar.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrNoHoldings):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		return http.StatusInternalServerError
	case edgar.IsDocumentUnavailable(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
