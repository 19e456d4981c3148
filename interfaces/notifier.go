package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// NotifierService delivers one alert email per dispatched alert, at most
// once. A failed send is logged and never retried.
type NotifierService interface {
	SendAlert(ctx context.Context, report *models.Report, alert *models.Alert) error
}
