package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/database"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type Repositories struct {
	ReportRepository        interfaces.ReportRepository
	AlertRepository         interfaces.AlertRepository
	ProcessingLogRepository interfaces.ProcessingLogRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ReportRepository:        NewReportRepository(db),
		AlertRepository:         NewAlertRepository(db),
		ProcessingLogRepository: NewProcessingLogRepository(db),
	}
}

func MigrateDB(dbConfig *database.DatabaseConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Report{},
		&models.Record{},
		&models.Alert{},
		&models.ProcessingLog{},
	)

	db.Close()

	db, _ = gormDB.DB()
	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
