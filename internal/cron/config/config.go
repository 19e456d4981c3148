package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox report processing, every five minutes
	CronScheduleProcessReports string `env:"CRON_SCHEDULE_PROCESS_REPORTS" envDefault:"0 */5 * * * *"`
}
