package dmarc

import "encoding/xml"

// Wire types for the aggregate-report feedback document (RFC 7489 Appendix C).
// Count is kept as text so a bad value skips one record instead of failing the
// whole unmarshal.
type feedback struct {
	XMLName  xml.Name         `xml:"feedback"`
	Version  string           `xml:"version"`
	Metadata reportMetadata   `xml:"report_metadata"`
	Policy   *policyPublished `xml:"policy_published"`
	Records  []reportRecord   `xml:"record"`
}

type reportMetadata struct {
	OrgName          string    `xml:"org_name"`
	Email            string    `xml:"email"`
	ExtraContactInfo string    `xml:"extra_contact_info"`
	ReportID         string    `xml:"report_id"`
	Date             dateRange `xml:"date_range"`
	Errors           []string  `xml:"error"`
}

type dateRange struct {
	Begin int64 `xml:"begin"`
	End   int64 `xml:"end"`
}

type policyPublished struct {
	Domain string `xml:"domain"`
	ADKIM  string `xml:"adkim"`
	ASPF   string `xml:"aspf"`
	P      string `xml:"p"`
	SP     string `xml:"sp"`
	Pct    *int   `xml:"pct"`
	Fo     string `xml:"fo"`
}

type reportRecord struct {
	Row         row         `xml:"row"`
	Identifiers identifiers `xml:"identifiers"`
	AuthResults authResults `xml:"auth_results"`
}

type row struct {
	SourceIP string          `xml:"source_ip"`
	Count    string          `xml:"count"`
	Policy   policyEvaluated `xml:"policy_evaluated"`
}

type policyEvaluated struct {
	Disposition string           `xml:"disposition"`
	DKIM        string           `xml:"dkim"`
	SPF         string           `xml:"spf"`
	Reasons     []overrideReason `xml:"reason"`
}

type overrideReason struct {
	Type    string `xml:"type"`
	Comment string `xml:"comment"`
}

type identifiers struct {
	HeaderFrom   string `xml:"header_from"`
	EnvelopeFrom string `xml:"envelope_from"`
	EnvelopeTo   string `xml:"envelope_to"`
}

// dkim and spf may repeat; only the first of each feeds the stored record.
type authResults struct {
	DKIM []dkimAuthResult `xml:"dkim"`
	SPF  []spfAuthResult  `xml:"spf"`
}

type dkimAuthResult struct {
	Domain      string `xml:"domain"`
	Selector    string `xml:"selector"`
	Result      string `xml:"result"`
	HumanResult string `xml:"human_result"`
}

type spfAuthResult struct {
	Domain string `xml:"domain"`
	Scope  string `xml:"scope"`
	Result string `xml:"result"`
}
