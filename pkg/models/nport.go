package models

// --- N-PORT filings ---

// NPORTForms is the set of form codes recognized as N-PORT filings.
var NPORTForms = map[string]bool{
	"NPORT-P":     true,
	"NPORT-P/A":   true,
	"NPORT-NRT":   true,
	"NPORT-NRT/A": true,
}

// FilingRecord is one N-PORT submission parsed out of the EDGAR
// submissions feed.
type FilingRecord struct {
	Form       string `json:"form"`
	Accession  string `json:"accession"`
	Date       string `json:"date"` // ISO 8601, as reported by EDGAR
	PrimaryDoc string `json:"primary_doc"`
}

// FilingMetadata describes the set of N-PORT filings a registrant
// submitted on its most recent filing date.
type FilingMetadata struct {
	RegistrantName string         `json:"name"`
	LatestDate     string         `json:"latest_date"`
	Default        FilingRecord   `json:"default_filing"`
	LatestFilings  []FilingRecord `json:"latest_date_nport_filings"`
}

// --- Holdings ---

// Holding is one portfolio position from a filing's schedule of
// portfolio investments. A record is only kept when both Title and
// Value were present in the document; Cusip defaults to "N/A" and
// Balance to 0.
type Holding struct {
	Title   string  `json:"title"`
	Cusip   string  `json:"cusip"`
	Balance float64 `json:"balance"`
	Value   float64 `json:"value"`
}

// FilingGroupResult holds the extracted holdings of one filing (one
// series) on the latest filing date.
type FilingGroupResult struct {
	Form            string    `json:"form"`
	SeriesName      string    `json:"series_name"`
	AccessionNumber string    `json:"accession_number"`
	FilingURL       string    `json:"filing_url"`
	FilingDate      string    `json:"filing_date"` // reporting period if found, else filing date
	HoldingsCount   int       `json:"holdings_count"`
	TotalAssets     float64   `json:"total_assets"`
	Holdings        []Holding `json:"holdings"`
}

// AggregateResult is the terminal output of a non-streaming holdings
// request: every filing group that produced holdings, in resolver
// order.
type AggregateResult struct {
	CIK            string              `json:"cik"`
	RegistrantName string              `json:"registrant_name"`
	LatestDate     string              `json:"latest_date"`
	FilingGroups   []FilingGroupResult `json:"filing_groups"`
	ProcessingTime string              `json:"processing_time"`
}
