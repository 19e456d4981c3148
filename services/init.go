package services

import (
	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/repository"
	"github.com/dmarcwatch/dmarcwatch/services/alerts"
	"github.com/dmarcwatch/dmarcwatch/services/analysis"
	"github.com/dmarcwatch/dmarcwatch/services/archive"
	"github.com/dmarcwatch/dmarcwatch/services/dmarc"
	"github.com/dmarcwatch/dmarcwatch/services/events"
	"github.com/dmarcwatch/dmarcwatch/services/imap"
	"github.com/dmarcwatch/dmarcwatch/services/mime"
	"github.com/dmarcwatch/dmarcwatch/services/notifier"
	"github.com/dmarcwatch/dmarcwatch/services/pipeline"
)

type Services struct {
	Extractor       *mime.Extractor
	Collector       interfaces.IMAPCollector
	Parser          interfaces.ReportParser
	AnalysisService interfaces.AnalysisService
	AlertEvaluator  interfaces.AlertEvaluator
	NotifierService interfaces.NotifierService
	ArchiveService  interfaces.ArchiveService
	EventPublisher  interfaces.EventPublisher
	ReportPipeline  interfaces.ReportPipeline
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	extractor := mime.NewExtractor(log, cfg.AppConfig.MaxDecompressedSize)

	services := &Services{
		Extractor:       extractor,
		Collector:       imap.NewCollector(cfg.IMAPConfig, log, extractor),
		Parser:          dmarc.NewParser(log),
		AnalysisService: analysis.NewAnalysisService(cfg.AnalysisConfig, log),
		AlertEvaluator:  alerts.NewEvaluator(cfg.AlertConfig, log, repos.AlertRepository),
		NotifierService: notifier.NewSMTPNotifier(cfg.SMTPConfig, cfg.AlertConfig, log, repos.AlertRepository),
	}

	// Raw report archival and event publishing stay off until their backing
	// credentials are configured.
	if cfg.R2StorageConfig.AccountID != "" {
		services.ArchiveService = archive.NewR2Archive(cfg.R2StorageConfig, log)
	} else {
		log.Infof("report archival disabled, no R2 credentials configured")
	}

	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
		services.EventPublisher = publisher
	} else {
		log.Infof("event publishing disabled, no RabbitMQ url configured")
	}

	services.ReportPipeline = pipeline.NewProcessor(
		cfg.PipelineConfig,
		log,
		services.Collector,
		services.Parser,
		services.AnalysisService,
		services.AlertEvaluator,
		services.NotifierService,
		services.ArchiveService,
		services.EventPublisher,
		repos,
	)

	return services, nil
}
