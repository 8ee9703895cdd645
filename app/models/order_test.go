package models

import (
	"testing"
	"time"
)

func TestOrderIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{status: OrderStatusPending, want: false},
		{status: OrderStatusCompleted, want: true},
		{status: OrderStatusFailed, want: true},
		{status: OrderStatusCancelled, want: true},
	}

	for _, tt := range tests {
		o := Order{Status: tt.status}
		if got := o.IsTerminal(); got != tt.want {
			t.Fatalf("IsTerminal() for %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestPlanIsFree(t *testing.T) {
	free := Plan{Name: "Free", Price: 0}
	if !free.IsFree() {
		t.Fatalf("zero-price plan must be free")
	}
	paid := Plan{Name: "Premium", Price: 149.5}
	if paid.IsFree() {
		t.Fatalf("priced plan must not be free")
	}
}

func TestSubscriptionDaysRemaining(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		end  time.Time
		want int
	}{
		{end: now.AddDate(0, 0, -1), want: 0},
		{end: now, want: 0},
		{end: now.Add(6 * time.Hour), want: 1},
		{end: now.AddDate(0, 0, 30), want: 31},
	}

	for _, tt := range tests {
		s := Subscription{EndDate: tt.end}
		if got := s.DaysRemaining(now); got != tt.want {
			t.Fatalf("DaysRemaining(end=%v) = %d, want %d", tt.end, got, tt.want)
		}
	}
}
