package coolify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_AuthHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(map[string]string{"uuid": "p-1", "name": "demo"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token")
	if _, err := client.CreateProject(context.Background(), "demo", "test project"); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("Expected Accept application/json, got %q", gotAccept)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", gotContentType)
	}
}

func TestClient_CreateProject_ListResponse(t *testing.T) {
	// Some Coolify versions answer project creation with the full project
	// list; the client must pick the most recent project with that name.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"uuid": "p-1", "name": "other"},
			{"uuid": "p-2", "name": "demo"},
			{"uuid": "p-3", "name": "demo"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	proj, err := client.CreateProject(context.Background(), "demo", "")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	if proj.UUID != "p-3" {
		t.Errorf("Expected most recent matching project p-3, got %q", proj.UUID)
	}
}

func TestClient_CreateProject_ListResponseNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"uuid": "p-1", "name": "alpha"},
			{"uuid": "p-2", "name": "beta"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	proj, err := client.CreateProject(context.Background(), "demo", "")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	// Without a name match the last project is assumed to be the new one.
	if proj.UUID != "p-2" {
		t.Errorf("Expected fallback to last project p-2, got %q", proj.UUID)
	}
}

func TestClient_CreateApplication_Payload(t *testing.T) {
	var payload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/applications/public" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"uuid": "app-1", "name": "myrepo"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	app, err := client.CreateApplication(context.Background(), &ApplicationRequest{
		ProjectUUID:   "p-1",
		ServerUUID:    "srv-1",
		GitRepository: "https://github.com/user/myrepo.git",
		GitBranch:     "main",
		BuildPack:     "nixpacks",
		Name:          "myrepo",
		PortsExposes:  "3000",
		PortsMappings: "3003:3000",
	})
	if err != nil {
		t.Fatalf("CreateApplication failed: %v", err)
	}

	if app.UUID != "app-1" {
		t.Errorf("Expected app uuid app-1, got %q", app.UUID)
	}
	if payload["ports_mappings"] != "3003:3000" {
		t.Errorf("Expected ports_mappings 3003:3000, got %v", payload["ports_mappings"])
	}
	if payload["instant_deploy"] != false {
		t.Errorf("Expected instant_deploy false, got %v", payload["instant_deploy"])
	}
	if _, present := payload["base_directory"]; present {
		t.Error("Expected base_directory to be omitted when empty")
	}
}

func TestClient_UpstreamErrorPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"name already taken"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	_, err := client.CreateProject(context.Background(), "demo", "")
	if err == nil {
		t.Fatal("Expected error from upstream 422")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", apiErr.StatusCode)
	}
	if apiErr.Body != `{"message":"name already taken"}` {
		t.Errorf("Expected upstream body preserved, got %q", apiErr.Body)
	}
}

func TestClient_ListDeployments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/applications/app-1/deployments" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"status": "in_progress"},
			{"status": "finished"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	deployments, err := client.ListDeployments(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("ListDeployments failed: %v", err)
	}

	if len(deployments) != 2 {
		t.Fatalf("Expected 2 deployments, got %d", len(deployments))
	}
	if deployments[0].Status != StatusInProgress {
		t.Errorf("Expected latest status in_progress, got %q", deployments[0].Status)
	}
}
