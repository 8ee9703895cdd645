package sweeper

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/enutrac/payments/app/models"
	"github.com/enutrac/payments/app/repository"
	"github.com/enutrac/payments/internal/pkg/scheduler"
)

type stubOrderRepo struct {
	repository.OrderRepository

	lastCutoff time.Time
	failCount  int64
}

func (r *stubOrderRepo) FailStalePending(cutoff time.Time) (int64, error) {
	r.lastCutoff = cutoff
	return r.failCount, nil
}

type stubSubRepo struct {
	repository.SubscriptionRepository

	expired  int64
	expiring []models.Subscription
}

func (r *stubSubRepo) ExpireOverdue(now time.Time) (int64, error) {
	return r.expired, nil
}

func (r *stubSubRepo) ListExpiringBetween(from, to time.Time) ([]models.Subscription, error) {
	return r.expiring, nil
}

type stubSettingRepo struct {
	values map[string]string
}

func (r *stubSettingRepo) GetValue(key string) (string, error) {
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return "", gorm.ErrRecordNotFound
}

func (r *stubSettingRepo) SetValue(key, value string) error {
	r.values[key] = value
	return nil
}

func newTestSweeper(settings map[string]string) (*Sweeper, *stubOrderRepo, *scheduler.Scheduler) {
	orders := &stubOrderRepo{failCount: 3}
	sched := scheduler.New()
	repos := &repository.Repositories{
		Order:        orders,
		Subscription: &stubSubRepo{},
		Setting:      &stubSettingRepo{values: settings},
	}
	return New(repos, sched), orders, sched
}

func TestSweepOrders_DefaultCutoff(t *testing.T) {
	sw, orders, _ := newTestSweeper(map[string]string{})

	count, err := sw.SweepOrders()
	if err != nil {
		t.Fatalf("SweepOrders: %v", err)
	}
	if count != 3 {
		t.Fatalf("swept count = %d, want 3", count)
	}

	want := time.Now().Add(-DefaultCutoffHours * time.Hour)
	if diff := orders.lastCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff = %v, want ~%v", orders.lastCutoff, want)
	}
}

func TestSweepOrders_ConfiguredCutoff(t *testing.T) {
	sw, orders, _ := newTestSweeper(map[string]string{
		models.SettingSweepCutoffHours: "48",
	})

	if _, err := sw.SweepOrders(); err != nil {
		t.Fatalf("SweepOrders: %v", err)
	}

	want := time.Now().Add(-48 * time.Hour)
	if diff := orders.lastCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff = %v, want ~%v", orders.lastCutoff, want)
	}
}

func TestSweepOrders_InvalidCutoffFallsBack(t *testing.T) {
	for _, bad := range []string{"abc", "0", "-5"} {
		sw, orders, _ := newTestSweeper(map[string]string{
			models.SettingSweepCutoffHours: bad,
		})

		if _, err := sw.SweepOrders(); err != nil {
			t.Fatalf("SweepOrders(%q): %v", bad, err)
		}
		want := time.Now().Add(-DefaultCutoffHours * time.Hour)
		if diff := orders.lastCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Fatalf("cutoff for %q = %v, want default", bad, orders.lastCutoff)
		}
	}
}

func TestRegister_InstallsAllJobs(t *testing.T) {
	sw, _, sched := newTestSweeper(map[string]string{})

	if err := sw.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	status := sched.Status()
	if len(status) != 3 {
		t.Fatalf("job count = %d, want 3: %+v", len(status), status)
	}
	names := map[string]bool{}
	for _, st := range status {
		names[st.Name] = true
	}
	for _, want := range []string{JobOrderExpiry, JobSubscriptionExpiry, JobSubscriptionReminder} {
		if !names[want] {
			t.Fatalf("job %s not registered", want)
		}
	}
}

func TestRegister_DisabledSweepRemovesJob(t *testing.T) {
	settings := map[string]string{models.SettingSweepEnabled: "true"}
	sw, _, sched := newTestSweeper(settings)

	if err := sw.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	settings[models.SettingSweepEnabled] = "false"
	if err := sw.Register(); err != nil {
		t.Fatalf("Register after disable: %v", err)
	}

	for _, st := range sched.Status() {
		if st.Name == JobOrderExpiry {
			t.Fatalf("order expiry job still scheduled while disabled")
		}
	}
	if len(sched.Status()) != 2 {
		t.Fatalf("job count = %d, want 2", len(sched.Status()))
	}
}

func TestRegister_CustomSchedule(t *testing.T) {
	sw, _, sched := newTestSweeper(map[string]string{
		models.SettingSweepSchedule: "*/5 * * * *",
	})

	if err := sw.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, st := range sched.Status() {
		if st.Name == JobOrderExpiry && st.Spec != "*/5 * * * *" {
			t.Fatalf("sweep schedule = %q, want */5 * * * *", st.Spec)
		}
	}
}

func TestRegister_InvalidScheduleErrors(t *testing.T) {
	sw, _, _ := newTestSweeper(map[string]string{
		models.SettingSweepSchedule: "every hour",
	})

	if err := sw.Register(); err == nil {
		t.Fatalf("expected invalid schedule to error")
	}
}
