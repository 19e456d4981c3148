package interfaces

import (
	"golang.org/x/net/context"

	"github.com/dmarcwatch/dmarcwatch/dto"
)

// AnalysisService obtains a verdict for a report summary. It never returns an
// error: when the external service stays unreachable past the retry ceiling
// the verdict comes back in its unavailable variant.
type AnalysisService interface {
	Analyze(ctx context.Context, summary dto.ReportSummary) *dto.Verdict
}
