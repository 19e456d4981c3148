package dto

// ReportSummary is the bounded statistical payload sent to the analysis
// service: report metadata, aggregate counts, and at most the top ten records
// by message count.
type ReportSummary struct {
	OrgName      string `json:"orgName"`
	ExternalID   string `json:"reportId"`
	PolicyDomain string `json:"policyDomain"`
	DateBegin    string `json:"dateBegin"`
	DateEnd      string `json:"dateEnd"`

	Policy          string `json:"policy"`
	SubdomainPolicy string `json:"subdomainPolicy,omitempty"`
	Adkim           string `json:"adkim,omitempty"`
	Aspf            string `json:"aspf,omitempty"`
	Percent         int    `json:"percent"`

	TotalMessages int `json:"totalMessages"`
	SPFFailures   int `json:"spfFailures"`
	DKIMFailures  int `json:"dkimFailures"`
	Quarantined   int `json:"quarantined"`
	Rejected      int `json:"rejected"`

	TopRecords []RecordSummary `json:"topRecords"`
}

type RecordSummary struct {
	SourceIP    string `json:"sourceIp"`
	Count       int    `json:"count"`
	Disposition string `json:"disposition"`
	SPF         string `json:"spf"`
	DKIM        string `json:"dkim"`
	HeaderFrom  string `json:"headerFrom,omitempty"`
}

// Verdict is the structured outcome of the analysis stage. Unavailable marks
// the degraded variant returned on retry exhaustion; consumers check it before
// reading any other field.
type Verdict struct {
	Unavailable bool `json:"unavailable,omitempty"`

	Severity string `json:"severity,omitempty"`
	Summary  string `json:"summary,omitempty"`

	Failures            []string `json:"failures,omitempty"`
	UnauthorizedSources []string `json:"unauthorized_sources,omitempty"`
	Anomalies           []string `json:"anomalies,omitempty"`

	Recommendations  []string     `json:"recommendations,omitempty"`
	ActionItems      []ActionItem `json:"action_items,omitempty"`
	PositiveFindings []string     `json:"positive_findings,omitempty"`
	NextSteps        []string     `json:"next_steps,omitempty"`
}

type ActionItem struct {
	Priority        string   `json:"priority"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Steps           []string `json:"steps,omitempty"`
	AffectedIPs     []string `json:"affected_ips,omitempty"`
	ExpectedOutcome string   `json:"expected_outcome,omitempty"`
}

// UnavailableVerdict is what the pipeline works with when the analysis
// service could not be reached; severity stays unset so record-derived
// fallbacks apply.
func UnavailableVerdict() *Verdict {
	return &Verdict{Unavailable: true}
}

func (v *Verdict) IsAvailable() bool {
	return v != nil && !v.Unavailable
}
