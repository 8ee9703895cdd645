package sweeper

import (
	"strconv"
	"time"

	"github.com/enutrac/payments/app/models"
	"github.com/enutrac/payments/app/repository"
	"github.com/enutrac/payments/internal/pkg/scheduler"
	"github.com/gofiber/fiber/v2/log"
)

// Scheduled job names.
const (
	JobOrderExpiry          = "order-expiry"
	JobSubscriptionExpiry   = "subscription-expiry"
	JobSubscriptionReminder = "subscription-reminder"
)

// Defaults used when the settings table carries no value.
const (
	DefaultSweepSchedule    = "0 * * * *"
	DefaultCutoffHours      = 24
	defaultExpireSchedule   = "0 9 * * *"
	defaultReminderSchedule = "0 9 * * *"
	reminderLookaheadDays   = 7
	settingTrue             = "true"
)

// Sweeper registers the periodic jobs that resolve stale ledger state:
// failing pending orders past the cutoff, expiring overdue subscriptions
// and logging upcoming expiries. Every job is re-entrant: the PENDING-only
// and ACTIVE-only predicates make overlapping runs and missed ticks safe.
type Sweeper struct {
	orders   repository.OrderRepository
	subs     repository.SubscriptionRepository
	settings repository.SettingRepository
	sched    *scheduler.Scheduler
}

// New creates a sweeper bound to the given scheduler.
func New(repos *repository.Repositories, sched *scheduler.Scheduler) *Sweeper {
	return &Sweeper{
		orders:   repos.Order,
		subs:     repos.Subscription,
		settings: repos.Setting,
		sched:    sched,
	}
}

// Register reads the sweep configuration from settings and installs (or
// replaces) the jobs on the scheduler. Calling it again after a settings
// change swaps the schedules without duplicate firing.
func (s *Sweeper) Register() error {
	enabled := s.settingOr(models.SettingSweepEnabled, settingTrue) == settingTrue
	if !enabled {
		if s.sched.Remove(JobOrderExpiry) {
			log.Info("[Sweeper] order expiry sweep disabled via settings")
		}
	} else {
		schedule := s.settingOr(models.SettingSweepSchedule, DefaultSweepSchedule)
		err := s.sched.Replace(JobOrderExpiry, schedule, "fail stale pending orders", func() {
			if _, err := s.SweepOrders(); err != nil {
				log.Errorf("[Sweeper] order sweep failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	expireSchedule := s.settingOr(models.SettingSubscriptionExpireSchedule, defaultExpireSchedule)
	err := s.sched.Replace(JobSubscriptionExpiry, expireSchedule, "expire overdue subscriptions", func() {
		if _, err := s.ExpireSubscriptions(); err != nil {
			log.Errorf("[Sweeper] subscription expiry failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	reminderSchedule := s.settingOr(models.SettingSubscriptionReminderSchedule, defaultReminderSchedule)
	return s.sched.Replace(JobSubscriptionReminder, reminderSchedule, "log expiring subscriptions", func() {
		if err := s.RemindExpiring(); err != nil {
			log.Errorf("[Sweeper] reminder check failed: %v", err)
		}
	})
}

// SweepOrders fails every PENDING order older than the configured cutoff.
// The conditional predicate is the same one the dispatcher uses, so a
// callback racing a sweep resolves to exactly one writer per order.
func (s *Sweeper) SweepOrders() (int64, error) {
	cutoffHours := s.cutoffHours()
	cutoff := time.Now().Add(-time.Duration(cutoffHours) * time.Hour)

	count, err := s.orders.FailStalePending(cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Infof("[Sweeper] marked %d stale pending orders as FAILED (cutoff %dh)", count, cutoffHours)
	}
	return count, nil
}

// ExpireSubscriptions flips ACTIVE subscriptions past their end date to
// EXPIRED.
func (s *Sweeper) ExpireSubscriptions() (int64, error) {
	count, err := s.subs.ExpireOverdue(time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Infof("[Sweeper] deactivated %d expired subscriptions", count)
	}
	return count, nil
}

// RemindExpiring logs subscriptions ending within the lookahead window.
// TODO: route reminders through the notify queue once subscriptions carry
// a contact address.
func (s *Sweeper) RemindExpiring() error {
	now := time.Now()
	subs, err := s.subs.ListExpiringBetween(now, now.AddDate(0, 0, reminderLookaheadDays))
	if err != nil {
		return err
	}
	for _, sub := range subs {
		log.Infof("[Sweeper] subscription for user %d (plan %d) expires %s",
			sub.UserID, sub.PlanID, sub.EndDate.Format("2006-01-02"))
	}
	return nil
}

func (s *Sweeper) settingOr(key, def string) string {
	val, err := s.settings.GetValue(key)
	if err != nil {
		log.Warnf("[Sweeper] could not read setting %s: %v", key, err)
		return def
	}
	if val == "" {
		return def
	}
	return val
}

func (s *Sweeper) cutoffHours() int {
	raw := s.settingOr(models.SettingSweepCutoffHours, strconv.Itoa(DefaultCutoffHours))
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		log.Warnf("[Sweeper] invalid %s value %q, using %d", models.SettingSweepCutoffHours, raw, DefaultCutoffHours)
		return DefaultCutoffHours
	}
	return hours
}
