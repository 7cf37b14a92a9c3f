package alignd

import (
	"testing"
	"time"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

func TestJobStoreCreateAndGet(t *testing.T) {
	s := NewJobStore()

	job, err := s.Create("chip-01", models.StrategyGradient, models.Position{X: 1})
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if job.ID == "" {
		t.Error("Job should get an ID")
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("New job should be pending, got %s", job.Status)
	}
	if job.SubmittedAt.IsZero() {
		t.Error("SubmittedAt should be stamped")
	}

	got, ok := s.Get(job.ID)
	if !ok {
		t.Fatal("Created job should be retrievable")
	}
	if got.DeviceID != "chip-01" || got.Start.X != 1 {
		t.Errorf("Unexpected job contents: %+v", got)
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("Unknown job ID should not resolve")
	}
}

func TestJobStoreCreateValidation(t *testing.T) {
	s := NewJobStore()
	if _, err := s.Create("", models.StrategyGradient, models.Position{}); err == nil {
		t.Error("Empty device ID should be rejected")
	}
	if _, err := s.Create("chip-01", models.Strategy("random-walk"), models.Position{}); err == nil {
		t.Error("Unknown strategy should be rejected")
	}
}

func TestJobStoreStatusTransitions(t *testing.T) {
	s := NewJobStore()
	job, _ := s.Create("chip-01", models.StrategySpiral, models.Position{})

	running, err := s.SetStatus(job.ID, models.JobStatusRunning, "")
	if err != nil {
		t.Fatalf("Pending to running should succeed: %v", err)
	}
	if running.StartedAt.IsZero() {
		t.Error("Running transition should stamp StartedAt")
	}

	done, err := s.SetStatus(job.ID, models.JobStatusCompleted, "")
	if err != nil {
		t.Fatalf("Running to completed should succeed: %v", err)
	}
	if done.CompletedAt.IsZero() {
		t.Error("Terminal transition should stamp CompletedAt")
	}

	if _, err := s.SetStatus(job.ID, models.JobStatusRunning, ""); err == nil {
		t.Error("Transitions out of a terminal status should be rejected")
	}
	if _, err := s.SetStatus("missing", models.JobStatusRunning, ""); err == nil {
		t.Error("Unknown job should be rejected")
	}
}

func TestJobStoreSetResult(t *testing.T) {
	s := NewJobStore()
	job, _ := s.Create("chip-01", models.StrategyGradient, models.Position{})

	res := &models.AlignmentResult{Success: true, OpticalPowerDbm: -1.5}
	if err := s.SetResult(job.ID, res); err != nil {
		t.Fatalf("Failed to set result: %v", err)
	}
	got, _ := s.Get(job.ID)
	if got.Result == nil || got.Result.OpticalPowerDbm != -1.5 {
		t.Errorf("Result not attached: %+v", got.Result)
	}

	if err := s.SetResult("missing", res); err == nil {
		t.Error("Unknown job should be rejected")
	}
}

func TestJobStoreListFilters(t *testing.T) {
	s := NewJobStore()

	a, _ := s.Create("chip-01", models.StrategyGradient, models.Position{})
	time.Sleep(time.Millisecond)
	b, _ := s.Create("chip-02", models.StrategySpiral, models.Position{})
	time.Sleep(time.Millisecond)
	c, _ := s.Create("chip-01", models.StrategyCombined, models.Position{})
	if _, err := s.SetStatus(b.ID, models.JobStatusRunning, ""); err != nil {
		t.Fatalf("Failed to mark job running: %v", err)
	}

	all := s.List(0, "", "")
	if len(all) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(all))
	}
	if all[0].ID != c.ID {
		t.Errorf("List should be newest first, got %s", all[0].ID)
	}

	chip1 := s.List(0, "chip-01", "")
	if len(chip1) != 2 || chip1[1].ID != a.ID {
		t.Errorf("Expected chip-01 jobs newest first, got %+v", chip1)
	}

	running := s.List(0, "", models.JobStatusRunning)
	if len(running) != 1 || running[0].ID != b.ID {
		t.Errorf("Expected only the running job, got %+v", running)
	}

	limited := s.List(1, "", "")
	if len(limited) != 1 || limited[0].ID != c.ID {
		t.Errorf("Limit should keep the newest job, got %+v", limited)
	}

	// Mutating a returned job must not affect the store.
	all[0].DeviceID = "tampered"
	fresh, _ := s.Get(c.ID)
	if fresh.DeviceID == "tampered" {
		t.Error("List must return copies")
	}
}
