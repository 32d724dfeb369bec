// Package nport implements the N-PORT filing discovery and extraction
// pipeline: resolving a fund's latest filings from the EDGAR
// submissions feed, fetching the filing documents with fallback URL
// strategies, scraping holdings out of their HTML renderings, and
// aggregating or streaming the results.
package nport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fundlens/nportd/internal/edgar"
	"github.com/fundlens/nportd/internal/infra"
	"github.com/fundlens/nportd/pkg/models"
)

// DefaultFallbackURLs are the alternate document URL forms tried, in
// order, when the canonical archive URL is not available. These track
// EDGAR's URL conventions and are overridable through configuration.
// Recognized placeholders: {archives}, {cik}, {accession},
// {accession_nodash}.
var DefaultFallbackURLs = []string{
	"https://www.sec.gov/cgi-bin/viewer?action=view&cik={cik}&accession_number={accession}&xbrl_type=v",
	"{archives}/edgar/data/{cik}/{accession_nodash}/xslFormNPORT-P_X01/primary_doc.xml",
}

// Options configures a Service. Zero values fall back to defaults
// matching the deployed service.
type Options struct {
	MetadataCacheSize int
	DocumentCacheSize int
	HoldingsCacheSize int
	FallbackURLs      []string
	StreamDelay       time.Duration
}

// Service owns the pipeline and its process-wide state: the three
// bounded caches, the in-flight request group, and the stream task
// registry.
type Service struct {
	client *edgar.Client

	metadataCache *infra.Cache
	documentCache *infra.Cache
	holdingsCache *infra.Cache

	group        singleflight.Group
	fallbackURLs []string
	streamDelay  time.Duration
	tasks        *TaskRegistry
}

// NewService creates a Service around an EDGAR client.
func NewService(client *edgar.Client, opts Options) *Service {
	if opts.MetadataCacheSize <= 0 {
		opts.MetadataCacheSize = 256
	}
	if opts.DocumentCacheSize <= 0 {
		opts.DocumentCacheSize = 128
	}
	if opts.HoldingsCacheSize <= 0 {
		opts.HoldingsCacheSize = 64
	}
	if len(opts.FallbackURLs) == 0 {
		opts.FallbackURLs = DefaultFallbackURLs
	}
	if opts.StreamDelay <= 0 {
		opts.StreamDelay = 100 * time.Millisecond
	}
	return &Service{
		client:        client,
		metadataCache: infra.NewCache(opts.MetadataCacheSize),
		documentCache: infra.NewCache(opts.DocumentCacheSize),
		holdingsCache: infra.NewCache(opts.HoldingsCacheSize),
		fallbackURLs:  opts.FallbackURLs,
		streamDelay:   opts.StreamDelay,
		tasks:         NewTaskRegistry(),
	}
}

// Tasks returns the stream task registry.
func (s *Service) Tasks() *TaskRegistry { return s.tasks }

// CacheInfo returns counters for all three caches, keyed the way the
// cache-info endpoint reports them.
func (s *Service) CacheInfo() map[string]infra.CacheInfo {
	return map[string]infra.CacheInfo{
		"metadata_cache": s.metadataCache.Info(),
		"html_cache":     s.documentCache.Info(),
		"holdings_cache": s.holdingsCache.Info(),
	}
}

// FlushCaches empties all three caches and resets their counters.
func (s *Service) FlushCaches() {
	s.metadataCache.Flush()
	s.documentCache.Flush()
	s.holdingsCache.Flush()
}

// ResolveMetadata fetches and caches the set of N-PORT filings a
// registrant submitted on its most recent filing date. cik must
// already be canonical (10 digits).
func (s *Service) ResolveMetadata(ctx context.Context, cik string) (*models.FilingMetadata, error) {
	if cached, ok := s.metadataCache.Get(cik); ok {
		return cached.(*models.FilingMetadata), nil
	}

	v, err, _ := s.group.Do("meta:"+cik, func() (any, error) {
		body, err := s.client.FetchSubmissions(ctx, cik)
		if err != nil {
			return nil, err
		}
		md, err := parseSubmissions(body, cik)
		if err != nil {
			return nil, err
		}
		s.metadataCache.Set(cik, md)
		return md, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.FilingMetadata), nil
}

// parseSubmissions filters the submissions feed down to the N-PORT
// filings on the most recent filing date.
func parseSubmissions(body []byte, cik string) (*models.FilingMetadata, error) {
	var feed submissionsResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", edgar.ErrUpstreamUnavailable, err)
	}

	name := feed.Name
	if name == "" {
		name = "Unknown Registrant"
	}

	recent := feed.Filings.Recent
	var records []models.FilingRecord
	for i, form := range recent.Form {
		if !models.NPORTForms[form] {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) {
			continue
		}
		doc := ""
		if i < len(recent.PrimaryDocument) {
			doc = recent.PrimaryDocument[i]
		}
		records = append(records, models.FilingRecord{
			Form:       form,
			Accession:  recent.AccessionNumber[i],
			Date:       recent.FilingDate[i],
			PrimaryDoc: doc,
		})
	}

	if len(records) == 0 {
		return nil, &NotFoundError{
			Detail: fmt.Sprintf("No N-PORT filings found for %s (CIK: %s).", name, cik),
		}
	}

	// Dates are ISO 8601, so the lexicographic max is the
	// chronological max.
	latest := records[0].Date
	for _, r := range records[1:] {
		if r.Date > latest {
			latest = r.Date
		}
	}

	var latestFilings []models.FilingRecord
	for _, r := range records {
		if r.Date == latest {
			latestFilings = append(latestFilings, r)
		}
	}
	if len(latestFilings) == 0 {
		// Unreachable given the filter above, checked defensively.
		return nil, &NotFoundError{
			Detail: fmt.Sprintf("No N-PORT filings found for %s (CIK: %s).", name, cik),
		}
	}

	sort.Slice(latestFilings, func(i, j int) bool {
		if latestFilings[i].Form != latestFilings[j].Form {
			return latestFilings[i].Form < latestFilings[j].Form
		}
		return latestFilings[i].Accession < latestFilings[j].Accession
	})

	log.Printf("Found %d N-PORT filings on %s for %s (%s)",
		len(latestFilings), latest, name, cik)

	return &models.FilingMetadata{
		RegistrantName: name,
		LatestDate:     latest,
		Default:        latestFilings[0],
		LatestFilings:  latestFilings,
	}, nil
}

// fetchDocument downloads a filing document through the document
// cache.
func (s *Service) fetchDocument(ctx context.Context, url string) ([]byte, error) {
	if cached, ok := s.documentCache.Get(url); ok {
		return cached.([]byte), nil
	}
	content, err := s.client.FetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}
	s.documentCache.Set(url, content)
	return content, nil
}

// documentURL builds the canonical archive URL for a filing.
func (s *Service) documentURL(cik string, filing models.FilingRecord) string {
	accNoDash := strings.ReplaceAll(filing.Accession, "-", "")
	doc := filing.PrimaryDoc
	if doc == "" {
		doc = "primary_doc.xml"
	}
	return fmt.Sprintf("%s/edgar/data/%s/%s/%s", s.client.ArchivesURL(), cik, accNoDash, doc)
}

// alternateURLs expands the configured fallback templates for a
// filing.
func (s *Service) alternateURLs(cik string, filing models.FilingRecord) []string {
	accNoDash := strings.ReplaceAll(filing.Accession, "-", "")
	r := strings.NewReplacer(
		"{archives}", s.client.ArchivesURL(),
		"{cik}", cik,
		"{accession}", filing.Accession,
		"{accession_nodash}", accNoDash,
	)
	urls := make([]string, 0, len(s.fallbackURLs))
	for _, tmpl := range s.fallbackURLs {
		urls = append(urls, r.Replace(tmpl))
	}
	return urls
}

// fetchFilingDocument fetches a filing's document, trying the
// canonical URL first and the configured alternates when the document
// is reported unavailable. Returns the content and the URL that
// succeeded.
func (s *Service) fetchFilingDocument(ctx context.Context, cik string, filing models.FilingRecord) ([]byte, string, error) {
	url := s.documentURL(cik, filing)
	log.Printf("Fetching HTML from: %s", url)

	content, err := s.fetchDocument(ctx, url)
	if err == nil {
		return content, url, nil
	}
	if !edgar.IsDocumentUnavailable(err) {
		return nil, "", err
	}

	for _, alt := range s.alternateURLs(cik, filing) {
		log.Printf("Trying alternative URL: %s", alt)
		content, altErr := s.fetchDocument(ctx, alt)
		if altErr == nil {
			return content, alt, nil
		}
	}
	return nil, "", err
}

// Aggregate resolves the latest-date filings for a CIK, extracts
// holdings from each, and returns the accumulated result. Filings
// that fail recoverably are skipped; a fetch timeout or an upstream
// block fails the whole request. Results are cached by (cik, limit).
func (s *Service) Aggregate(ctx context.Context, cik string, limit int) (*models.AggregateResult, error) {
	cacheKey := fmt.Sprintf("%s:%d", cik, limit)
	if cached, ok := s.holdingsCache.Get(cacheKey); ok {
		return cached.(*models.AggregateResult), nil
	}

	v, err, _ := s.group.Do("agg:"+cacheKey, func() (any, error) {
		result, err := s.aggregate(ctx, cik, limit)
		if err != nil {
			return nil, err
		}
		s.holdingsCache.Set(cacheKey, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AggregateResult), nil
}

func (s *Service) aggregate(ctx context.Context, cik string, limit int) (*models.AggregateResult, error) {
	start := time.Now()

	md, err := s.ResolveMetadata(ctx, cik)
	if err != nil {
		return nil, err
	}

	var groups []models.FilingGroupResult
	for idx, filing := range md.LatestFilings {
		group, err := s.processFiling(ctx, cik, md, idx, filing, limit)
		if err != nil {
			if errors.Is(err, edgar.ErrTimeout) || errors.Is(err, edgar.ErrBlocked) {
				// A stalled upstream will stall every remaining
				// filing too, and a block applies to the whole
				// client, not one document.
				return nil, err
			}
			log.Printf("Skipping filing %s: %v", filing.Accession, err)
			continue
		}
		if group == nil {
			log.Printf("No holdings found in filing %s. The document may use a non-standard format.", filing.Accession)
			continue
		}
		groups = append(groups, *group)
	}

	if len(groups) == 0 {
		return nil, ErrNoHoldings
	}

	elapsed := time.Since(start)
	log.Printf("Successfully extracted holdings from %d N-PORT filings for %s in %.2fs",
		len(groups), md.RegistrantName, elapsed.Seconds())

	return &models.AggregateResult{
		CIK:            cik,
		RegistrantName: md.RegistrantName,
		LatestDate:     md.LatestDate,
		FilingGroups:   groups,
		ProcessingTime: fmt.Sprintf("%.2fs", elapsed.Seconds()),
	}, nil
}

// processFiling fetches and extracts one filing. Returns (nil, nil)
// when the document parsed cleanly but contained no holdings.
func (s *Service) processFiling(ctx context.Context, cik string, md *models.FilingMetadata, idx int, filing models.FilingRecord, limit int) (*models.FilingGroupResult, error) {
	content, url, err := s.fetchFilingDocument(ctx, cik, filing)
	if err != nil {
		return nil, err
	}

	doc, err := ParseDocument(content)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	seriesName := ExtractSeriesName(doc)
	reportingPeriod := ExtractReportingPeriod(doc)
	holdings := ExtractHoldings(doc, limit)
	if len(holdings) == 0 {
		return nil, nil
	}

	effectiveDate := reportingPeriod
	if effectiveDate == "" {
		effectiveDate = md.LatestDate
	}

	total := 0.0
	for _, h := range holdings {
		total += h.Value
	}

	if seriesName == "" {
		// Series A, B, C... by position among the latest-date group.
		seriesName = fmt.Sprintf("Series %c", 'A'+rune(idx))
	}

	return &models.FilingGroupResult{
		Form:            filing.Form,
		SeriesName:      seriesName,
		AccessionNumber: filing.Accession,
		FilingURL:       url,
		FilingDate:      effectiveDate,
		HoldingsCount:   len(holdings),
		TotalAssets:     total,
		Holdings:        holdings,
	}, nil
}
