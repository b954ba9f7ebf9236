package models

// SchedulerConfig configures the background aggregation jobs.
// Monthly aggregation is expected to run after the daily job has covered
// the month; the monthly job verifies that before writing anything.
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled" json:"enabled"`
	DailyHour           int  `yaml:"daily_hour,omitempty" json:"daily_hour,omitzero"`
	MonthlyDay          int  `yaml:"monthly_day,omitempty" json:"monthly_day,omitzero"`
	MonthlyHour         int  `yaml:"monthly_hour,omitempty" json:"monthly_hour,omitzero"`
	ReportDay           int  `yaml:"report_day,omitempty" json:"report_day,omitzero"`
	ReportHour          int  `yaml:"report_hour,omitempty" json:"report_hour,omitzero"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds,omitempty" json:"tick_interval_seconds,omitzero"`
}
