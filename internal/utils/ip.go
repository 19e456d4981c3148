package utils

import (
	"context"
	"net"
	"strings"
	"time"
)

const ptrLookupTimeout = 3 * time.Second

var providerPatterns = []struct {
	fragments []string
	name      string
}{
	{[]string{"google.com", "googlemail.com", "1e100.net"}, "Google"},
	{[]string{"protection.outlook.com", "outlook.com", "microsoft.com"}, "Microsoft"},
	{[]string{"amazonses.com", "amazonaws.com"}, "Amazon SES"},
	{[]string{"yahoodns.net", "yahoo.com"}, "Yahoo"},
	{[]string{"mailgun.net", "mailgun.org"}, "Mailgun"},
	{[]string{"sendgrid.net"}, "SendGrid"},
	{[]string{"mimecast.com"}, "Mimecast"},
	{[]string{"pphosted.com", "proofpoint.com"}, "Proofpoint"},
	{[]string{"zoho.com", "zohomail.com"}, "Zoho"},
	{[]string{"mailchimp.com", "mcsv.net", "rsgsv.net"}, "Mailchimp"},
}

// LookupSendingProvider resolves the PTR record for an IP and maps the hostname
// to a known sending provider. Falls back to the bare hostname when no provider
// matches and to "" when the lookup fails entirely.
func LookupSendingProvider(ctx context.Context, ip string) string {
	if net.ParseIP(ip) == nil {
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, ptrLookupTimeout)
	defer cancel()

	var resolver net.Resolver
	names, err := resolver.LookupAddr(lookupCtx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}

	hostname := strings.ToLower(strings.TrimSuffix(names[0], "."))
	if provider := MatchSendingProvider(hostname); provider != "" {
		return provider
	}
	return hostname
}

func MatchSendingProvider(hostname string) string {
	for _, p := range providerPatterns {
		for _, fragment := range p.fragments {
			if strings.HasSuffix(hostname, fragment) {
				return p.name
			}
		}
	}
	return ""
}

// ProviderFromReportFilename extracts the reporting receiver from the customary
// aggregate report attachment name (receiver!domain!begin!end.xml).
func ProviderFromReportFilename(filename string) string {
	parts := strings.Split(filename, "!")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "enterprise.protection.outlook.com":
		return "outlook.com"
	case "aol.com":
		return "yahoo.com"
	default:
		return parts[0]
	}
}
