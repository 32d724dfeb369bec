package nport

// submissionsResponse mirrors the EDGAR submissions feed. Filing
// attributes arrive as parallel arrays under filings.recent.
type submissionsResponse struct {
	Name    string `json:"name"`
	Filings struct {
		Recent recentFilings `json:"recent"`
	} `json:"filings"`
}

type recentFilings struct {
	Form            []string `json:"form"`
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	PrimaryDocument []string `json:"primaryDocument"`
}
