package nport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fundlens/nportd/internal/edgar"
)

// newTestService wires a Service against a test server acting as both
// the submissions endpoint and the archives host.
func newTestService(t *testing.T, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := edgar.NewClient(
		edgar.WithSubmissionsURL(srv.URL+"/submissions"),
		edgar.WithArchivesURL(srv.URL),
	)
	svc := NewService(client, Options{
		FallbackURLs: []string{"{archives}/alt/{cik}/{accession_nodash}.htm"},
	})
	return svc, srv
}

func TestAggregateTwoFilings(t *testing.T) {
	submissions := submissionsJSON("Test Trust",
		[]string{"NPORT-P", "NPORT-P"},
		[]string{"0001-24-000001", "0001-24-000002"},
		[]string{"2024-02-29", "2024-02-29"},
		[]string{"primary_doc.xml", "primary_doc.xml"},
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissions)
	})
	mux.HandleFunc("/edgar/data/0000884394/000124000001/primary_doc.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, filingHTML(investmentSection("Apple Inc", "037833100", "1000", "150000.50")))
	})
	mux.HandleFunc("/edgar/data/0000884394/000124000002/primary_doc.xml", func(w http.ResponseWriter, r *http.Request) {
		// No Part A section: series name must be synthesized by position.
		fmt.Fprint(w, "<html><body>"+investmentSection("Microsoft Corp", "594918104", "500", "200000")+"</body></html>")
	})

	svc, _ := newTestService(t, mux)
	result, err := svc.Aggregate(context.Background(), "0000884394", 0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if result.CIK != "0000884394" {
		t.Errorf("cik = %q", result.CIK)
	}
	if result.RegistrantName != "Test Trust" {
		t.Errorf("registrant = %q", result.RegistrantName)
	}
	if result.LatestDate != "2024-02-29" {
		t.Errorf("latest date = %q", result.LatestDate)
	}
	if len(result.FilingGroups) != 2 {
		t.Fatalf("expected 2 filing groups, got %d", len(result.FilingGroups))
	}
	if result.ProcessingTime == "" {
		t.Error("expected non-empty processing time")
	}

	first := result.FilingGroups[0]
	if first.SeriesName != "Growth Fund" {
		t.Errorf("first series = %q, want Growth Fund", first.SeriesName)
	}
	// Reporting period from the document overrides the filing date.
	if first.FilingDate != "2024-03-31" {
		t.Errorf("first filing date = %q, want 2024-03-31", first.FilingDate)
	}
	if first.HoldingsCount != 1 || first.TotalAssets != 150000.50 {
		t.Errorf("first group: count=%d total=%v", first.HoldingsCount, first.TotalAssets)
	}

	second := result.FilingGroups[1]
	if second.SeriesName != "Series B" {
		t.Errorf("second series = %q, want Series B", second.SeriesName)
	}
	// No reporting period in the document: falls back to filing date.
	if second.FilingDate != "2024-02-29" {
		t.Errorf("second filing date = %q, want 2024-02-29", second.FilingDate)
	}
}

func TestAggregateFallbackURL(t *testing.T) {
	submissions := submissionsJSON("Fallback Fund",
		[]string{"NPORT-P"},
		[]string{"0001-24-000001"},
		[]string{"2024-02-29"},
		[]string{"primary_doc.xml"},
	)
	var altHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissions)
	})
	// Canonical URL is gone; the alternate carries the document.
	mux.HandleFunc("/edgar/data/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/alt/0000884394/000124000001.htm", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&altHits, 1)
		fmt.Fprint(w, filingHTML(investmentSection("Apple Inc", "037833100", "1000", "150000.50")))
	})

	svc, srv := newTestService(t, mux)
	result, err := svc.Aggregate(context.Background(), "0000884394", 0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if atomic.LoadInt32(&altHits) != 1 {
		t.Error("expected the alternate URL to be fetched")
	}
	wantURL := srv.URL + "/alt/0000884394/000124000001.htm"
	if result.FilingGroups[0].FilingURL != wantURL {
		t.Errorf("filing url = %q, want %q", result.FilingGroups[0].FilingURL, wantURL)
	}
}

func TestAggregateSkipsFailedFiling(t *testing.T) {
	submissions := submissionsJSON("Partial Fund",
		[]string{"NPORT-P", "NPORT-P"},
		[]string{"0001-24-000001", "0001-24-000002"},
		[]string{"2024-02-29", "2024-02-29"},
		[]string{"primary_doc.xml", "primary_doc.xml"},
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissions)
	})
	// First filing's document is nowhere to be found.
	mux.HandleFunc("/edgar/data/0000884394/000124000002/primary_doc.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, filingHTML(investmentSection("Apple Inc", "037833100", "1000", "150000.50")))
	})

	svc, _ := newTestService(t, mux)
	result, err := svc.Aggregate(context.Background(), "0000884394", 0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(result.FilingGroups) != 1 {
		t.Fatalf("expected 1 surviving group, got %d", len(result.FilingGroups))
	}
	if result.FilingGroups[0].AccessionNumber != "0001-24-000002" {
		t.Errorf("wrong surviving filing: %s", result.FilingGroups[0].AccessionNumber)
	}
}

// timeoutError mimics a transport deadline failure.
type timeoutError struct{}

func (timeoutError) Error() string { return "context deadline exceeded" }
func (timeoutError) Timeout() bool { return true }

// stallTransport times out requests whose path contains timeoutPath
// and passes everything else through.
type stallTransport struct {
	base        http.RoundTripper
	timeoutPath string
}

func (t *stallTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.Path, t.timeoutPath) {
		return nil, timeoutError{}
	}
	return t.base.RoundTrip(req)
}

func twoFilingSubmissions(name string) string {
	return submissionsJSON(name,
		[]string{"NPORT-P", "NPORT-P"},
		[]string{"0001-24-000001", "0001-24-000002"},
		[]string{"2024-02-29", "2024-02-29"},
		[]string{"primary_doc.xml", "primary_doc.xml"},
	)
}

func TestAggregateBlockedIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, twoFilingSubmissions("Blocked Fund"))
	})
	// Every document URL is met with a 403.
	mux.HandleFunc("/edgar/data/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/alt/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	svc, _ := newTestService(t, mux)
	_, err := svc.Aggregate(context.Background(), "0000884394", 0)
	if !errors.Is(err, edgar.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if got := StatusForError(err); got != http.StatusForbidden {
		t.Errorf("status = %d, want 403", got)
	}
}

func TestAggregateTimeoutIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, twoFilingSubmissions("Slow Fund"))
	})
	// The second filing's document would extract fine, but the first
	// one times out and that must fail the whole request.
	mux.HandleFunc("/edgar/data/0000884394/000124000002/primary_doc.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, filingHTML(investmentSection("Apple Inc", "037833100", "1000", "150000.50")))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := edgar.NewClient(
		edgar.WithSubmissionsURL(srv.URL+"/submissions"),
		edgar.WithArchivesURL(srv.URL),
		edgar.WithHTTPClient(&http.Client{Transport: &stallTransport{
			base:        http.DefaultTransport,
			timeoutPath: "000124000001",
		}}),
	)
	svc := NewService(client, Options{
		FallbackURLs: []string{"{archives}/alt/{cik}/{accession_nodash}.htm"},
	})

	_, err := svc.Aggregate(context.Background(), "0000884394", 0)
	if !errors.Is(err, edgar.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if got := StatusForError(err); got != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", got)
	}
}

func TestAggregateNoHoldingsAnywhere(t *testing.T) {
	submissions := submissionsJSON("Empty Fund",
		[]string{"NPORT-P"},
		[]string{"0001-24-000001"},
		[]string{"2024-02-29"},
		[]string{"primary_doc.xml"},
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissions)
	})
	mux.HandleFunc("/edgar/data/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>nothing here</p></body></html>")
	})

	svc, _ := newTestService(t, mux)
	_, err := svc.Aggregate(context.Background(), "0000884394", 0)
	if !errors.Is(err, ErrNoHoldings) {
		t.Errorf("expected ErrNoHoldings, got %v", err)
	}
}

func TestAggregateResultIsCached(t *testing.T) {
	var docFetches int32
	submissions := submissionsJSON("Cached Fund",
		[]string{"NPORT-P"},
		[]string{"0001-24-000001"},
		[]string{"2024-02-29"},
		[]string{"primary_doc.xml"},
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissions)
	})
	mux.HandleFunc("/edgar/data/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&docFetches, 1)
		fmt.Fprint(w, filingHTML(investmentSection("Apple Inc", "037833100", "1000", "150000.50")))
	})

	svc, _ := newTestService(t, mux)
	for i := 0; i < 2; i++ {
		if _, err := svc.Aggregate(context.Background(), "0000884394", 0); err != nil {
			t.Fatalf("Aggregate #%d: %v", i+1, err)
		}
	}
	if n := atomic.LoadInt32(&docFetches); n != 1 {
		t.Errorf("expected 1 document fetch, got %d", n)
	}

	// Different limit is a different cache entry.
	if _, err := svc.Aggregate(context.Background(), "0000884394", 5); err != nil {
		t.Fatalf("Aggregate with limit: %v", err)
	}
	// The document cache still absorbs the refetch.
	if n := atomic.LoadInt32(&docFetches); n != 1 {
		t.Errorf("expected document cache hit, got %d fetches", n)
	}
}
