package history

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestHistory_Record(t *testing.T) {
	hist := newTestHistory(t)

	id, err := hist.Record(context.Background(), &Record{
		Subdomain:   "myapp",
		ProjectName: "MyProject",
		AppName:     "myrepo",
		ProjectUUID: strPtr("p-1"),
		AppUUID:     strPtr("app-1"),
		HostPort:    intPtr(3003),
		Status:      StatusInitiated,
	})
	if err != nil {
		t.Fatalf("Failed to record deployment: %v", err)
	}
	if id == 0 {
		t.Error("Expected non-zero record ID")
	}
}

func TestHistory_LatestBySubdomain(t *testing.T) {
	hist := newTestHistory(t)
	ctx := context.Background()

	_, err := hist.Record(ctx, &Record{
		Subdomain:   "myapp",
		ProjectName: "MyProject",
		AppName:     "myrepo",
		HostPort:    intPtr(3003),
		Status:      StatusInitiated,
	})
	if err != nil {
		t.Fatalf("Failed to record first deployment: %v", err)
	}

	_, err = hist.Record(ctx, &Record{
		Subdomain:    "myapp",
		ProjectName:  "MyProject",
		AppName:      "myrepo",
		HostPort:     intPtr(3004),
		Status:       StatusFailed,
		ErrorMessage: strPtr("application creation failed"),
	})
	if err != nil {
		t.Fatalf("Failed to record second deployment: %v", err)
	}

	latest, err := hist.LatestBySubdomain(ctx, "myapp")
	if err != nil {
		t.Fatalf("Failed to get latest deployment: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected latest deployment to be non-nil")
	}

	if latest.Status != StatusFailed {
		t.Errorf("Expected latest status %q, got %q", StatusFailed, latest.Status)
	}
	if latest.HostPort == nil || *latest.HostPort != 3004 {
		t.Errorf("Expected latest host port 3004, got %v", latest.HostPort)
	}
	if latest.ErrorMessage == nil || *latest.ErrorMessage != "application creation failed" {
		t.Errorf("Expected error message preserved, got %v", latest.ErrorMessage)
	}
}

func TestHistory_LatestBySubdomain_NoRecords(t *testing.T) {
	hist := newTestHistory(t)

	latest, err := hist.LatestBySubdomain(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Expected no error for unknown subdomain, got: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil for unknown subdomain, got: %+v", latest)
	}
}

func TestHistory_FailedDeploymentKeepsOrphanedPort(t *testing.T) {
	hist := newTestHistory(t)
	ctx := context.Background()

	// A failure after port allocation leaves a permanent gap in the port
	// range; the record is the only place the orphaned port shows up.
	_, err := hist.Record(ctx, &Record{
		Subdomain:    "broken",
		ProjectName:  "Broken",
		AppName:      "brokenrepo",
		HostPort:     intPtr(3010),
		Status:       StatusFailed,
		ErrorMessage: strPtr("upstream 422"),
	})
	if err != nil {
		t.Fatalf("Failed to record failed deployment: %v", err)
	}

	latest, err := hist.LatestBySubdomain(ctx, "broken")
	if err != nil {
		t.Fatalf("Failed to get latest deployment: %v", err)
	}
	if latest.AppUUID != nil {
		t.Errorf("Expected no app uuid for failed deployment, got %v", *latest.AppUUID)
	}
	if latest.HostPort == nil || *latest.HostPort != 3010 {
		t.Errorf("Expected orphaned port 3010 recorded, got %v", latest.HostPort)
	}
}

func TestHistory_Recent(t *testing.T) {
	hist := newTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := hist.Record(ctx, &Record{
			Subdomain:   "app",
			ProjectName: "App",
			AppName:     "repo",
			HostPort:    intPtr(3003 + i),
			Status:      StatusInitiated,
		})
		if err != nil {
			t.Fatalf("Failed to record deployment %d: %v", i, err)
		}
	}

	records, err := hist.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Failed to get recent deployments: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	// Newest first.
	if records[0].HostPort == nil || *records[0].HostPort != 3007 {
		t.Errorf("Expected newest record port 3007, got %v", records[0].HostPort)
	}
}
