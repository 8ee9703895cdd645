package scheduler

import (
	"testing"
)

func TestReplace_InvalidSpecRejected(t *testing.T) {
	s := New()

	if err := s.Replace("job", "not a cron spec", "test job", func() {}); err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
	if len(s.Status()) != 0 {
		t.Fatalf("invalid spec must not register a job")
	}
}

func TestReplace_InvalidSpecKeepsExistingJob(t *testing.T) {
	s := New()

	if err := s.Replace("job", "* * * * *", "test job", func() {}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := s.Replace("job", "61 * * * *", "broken", func() {}); err == nil {
		t.Fatalf("expected invalid replacement spec to be rejected")
	}

	status := s.Status()
	if len(status) != 1 {
		t.Fatalf("job count = %d, want 1", len(status))
	}
	if status[0].Spec != "* * * * *" {
		t.Fatalf("existing job was unscheduled, spec = %q", status[0].Spec)
	}
}

func TestReplace_SwapsEntry(t *testing.T) {
	s := New()

	if err := s.Replace("job", "0 * * * *", "hourly", func() {}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := s.Replace("job", "30 * * * *", "half past", func() {}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	status := s.Status()
	if len(status) != 1 {
		t.Fatalf("replacing must not leave a second timer, got %d entries", len(status))
	}
	if status[0].Spec != "30 * * * *" || status[0].Description != "half past" {
		t.Fatalf("entry not swapped: %+v", status[0])
	}
}

func TestRemove(t *testing.T) {
	s := New()

	if s.Remove("missing") {
		t.Fatalf("removing an unknown job must report false")
	}

	if err := s.Replace("job", "* * * * *", "test job", func() {}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if !s.Remove("job") {
		t.Fatalf("expected removal of a registered job to report true")
	}
	if len(s.Status()) != 0 {
		t.Fatalf("removed job still listed")
	}
}

func TestStatus_SortedByName(t *testing.T) {
	s := New()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := s.Replace(name, "* * * * *", name, func() {}); err != nil {
			t.Fatalf("Replace(%s): %v", name, err)
		}
	}

	status := s.Status()
	if len(status) != 3 {
		t.Fatalf("job count = %d, want 3", len(status))
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i, name := range want {
		if status[i].Name != name {
			t.Fatalf("status[%d].Name = %q, want %q", i, status[i].Name, name)
		}
	}
	for _, st := range status {
		if st.LastRun != nil {
			t.Fatalf("job %s reports a last run before ever firing", st.Name)
		}
	}
}
