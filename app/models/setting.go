package models

import "time"

// Well-known setting keys. The sweeper reads its configuration from the
// settings table so operators can change schedule and cutoff at runtime.
const (
	SettingSweepEnabled     = "sweep_enabled"
	SettingSweepSchedule    = "sweep_schedule"
	SettingSweepCutoffHours = "sweep_cutoff_hours"

	SettingSubscriptionExpireSchedule   = "subscription_expire_schedule"
	SettingSubscriptionReminderSchedule = "subscription_reminder_schedule"
)

// Setting represents a system setting stored as a key/value pair.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null;default:'string'" json:"type"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
