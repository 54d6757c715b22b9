package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"portway/internal/coolify"
	"portway/internal/deploy"
	"portway/internal/portalloc"
	"portway/internal/security"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	// ProvisionWait gives the platform time to provision an application
	// before env vars are injected on the step-by-step path.
	ProvisionWait = 3 * time.Second
)

// ProjectCreateRequest is the step-by-step project creation payload.
type ProjectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ApplicationCreateRequest is the step-by-step application creation payload.
// The caller supplies the host port explicitly; only the one-call deploy
// endpoint allocates from the counter.
type ApplicationCreateRequest struct {
	ProjectUUID     string `json:"project_uuid"`
	EnvironmentName string `json:"environment_name"`
	GitRepository   string `json:"git_repository"`
	GitBranch       string `json:"git_branch"`
	BuildPack       string `json:"build_pack,omitempty"`
	Name            string `json:"name"`
	HostPort        int    `json:"host_port"`
	ContainerPort   int    `json:"container_port,omitempty"`
	Domain          string `json:"domain,omitempty"`
	BaseDirectory   string `json:"base_directory,omitempty"`
}

// EnvVarRequest is the payload for setting one environment variable.
type EnvVarRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HandleHealth reports whether the service has the configuration it needs to
// talk to the platform.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	configStatus := map[string]bool{
		"coolify_url":        s.Config.CoolifyURL != "",
		"api_token":          s.Config.APIToken != "",
		"deploy_server_uuid": s.Config.DeployServerUUID != "",
		"dockerhub_image":    s.Config.DockerhubImage != "",
	}

	status := "healthy"
	for _, ok := range configStatus {
		if !ok {
			status = "misconfigured"
			break
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"config": configStatus,
	})
}

// HandleCreateProject creates a project on the platform.
func (s *Server) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectCreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	name, err := security.ValidateProjectName(req.Name)
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	description := req.Description
	if description == "" {
		description = "Auto-created project: " + name
	}

	proj, err := s.Client.CreateProject(r.Context(), name, description)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"uuid": proj.UUID,
		"name": proj.Name,
	})
}

// HandleGetEnvironment returns the first environment of a project.
func (s *Server) HandleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	projectUUID := chi.URLParam(r, "uuid")

	proj, err := s.Client.GetProject(r.Context(), projectUUID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if len(proj.Environments) == 0 {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "No environments found for project"})
		return
	}

	env := proj.Environments[0]
	s.respondJSON(w, http.StatusOK, map[string]string{
		"environment_uuid": env.UUID,
		"environment_name": env.Name,
		"project_uuid":     projectUUID,
	})
}

// HandleListApplications passes the platform's application list through.
func (s *Server) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	raw, err := s.Client.ListApplications(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// HandleCreateApplication creates an application with a caller-chosen host
// port. When a domain is given, the system env vars are injected as well.
func (s *Server) HandleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req ApplicationCreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	gitRepo, err := security.NormalizeGitURL(req.GitRepository)
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid git repository: %v", err)})
		return
	}

	if req.HostPort < 1 || req.HostPort > 65535 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid host port: %d", req.HostPort)})
		return
	}

	containerPort := req.ContainerPort
	if containerPort == 0 {
		containerPort = s.Config.ContainerPort
	}
	buildPack := req.BuildPack
	if buildPack == "" {
		buildPack = s.Config.BuildPack
	}

	app, err := s.Client.CreateApplication(r.Context(), &coolify.ApplicationRequest{
		ProjectUUID:             req.ProjectUUID,
		ServerUUID:              s.Config.DeployServerUUID,
		EnvironmentName:         req.EnvironmentName,
		DestinationUUID:         s.Config.DeployServerUUID,
		GitRepository:           gitRepo,
		GitBranch:               req.GitBranch,
		BuildPack:               buildPack,
		Name:                    req.Name,
		PortsExposes:            strconv.Itoa(containerPort),
		PortsMappings:           fmt.Sprintf("%d:%d", req.HostPort, containerPort),
		DockerRegistryImageName: s.Config.DockerhubImage,
		InstantDeploy:           false,
		BaseDirectory:           req.BaseDirectory,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}

	if req.Domain != "" {
		if !s.TestMode {
			time.Sleep(ProvisionWait)
		}
		_, vars := deploy.SystemEnvVars(req.Domain, s.Config.BaseDomain)
		for key, value := range vars {
			if _, err := s.Client.SetEnvVar(r.Context(), app.UUID, key, value); err != nil {
				s.Logger.Warn("failed to set system env var", "key", key, "app", app.UUID, "error", err)
			}
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"uuid": app.UUID,
		"name": app.Name,
	})
}

// HandleSetEnvVars sets one environment variable on an application.
func (s *Server) HandleSetEnvVars(w http.ResponseWriter, r *http.Request) {
	appUUID := chi.URLParam(r, "uuid")

	var req EnvVarRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing env var key"})
		return
	}

	ev, err := s.Client.SetEnvVar(r.Context(), appUUID, req.Key, req.Value)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"uuid":    ev.UUID,
		"message": fmt.Sprintf("Environment variable '%s' set successfully", req.Key),
	})
}

// HandleDeploy triggers a deployment for an existing application.
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	appUUID := chi.URLParam(r, "uuid")

	if err := s.Client.Deploy(r.Context(), appUUID); err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"uuid":    appUUID,
		"message": "Deployment triggered successfully",
	})
}

// HandleDeploymentStatus reports the status of the latest deployment.
func (s *Server) HandleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	appUUID := chi.URLParam(r, "uuid")

	deployments, err := s.Client.ListDeployments(r.Context(), appUUID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if len(deployments) == 0 {
		s.respondJSON(w, http.StatusOK, map[string]string{
			"status":  "no_deployments",
			"message": "No deployments found for this application",
		})
		return
	}

	status := deployments[0].Status
	messages := map[string]string{
		coolify.StatusFinished:   "Deployment completed successfully",
		coolify.StatusFailed:     "Deployment failed",
		coolify.StatusInProgress: "Deployment in progress",
		coolify.StatusQueued:     "Deployment queued",
	}
	message, ok := messages[status]
	if !ok {
		message = "Deployment status: " + status
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"message": message,
	})
}

// HandleFullDeployment runs the complete flow: validate, allocate a host
// port, create project and application, inject env vars, deploy.
func (s *Server) HandleFullDeployment(w http.ResponseWriter, r *http.Request) {
	var req deploy.FullDeploymentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.Orchestrator.FullDeployment(r.Context(), &req)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// decodeJSON reads a bounded JSON body into dst, answering 400 on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err := dec.Decode(dst); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return false
	}
	return true
}

// respondError translates an internal error into an HTTP response: input
// validation maps to 400, upstream platform errors keep their status, and
// counter failures distinguish misconfiguration from contention.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var verr *deploy.ValidationError
	if errors.As(err, &verr) {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
		return
	}

	var apiErr *coolify.APIError
	if errors.As(err, &apiErr) {
		s.respondJSON(w, apiErr.StatusCode, map[string]string{"error": apiErr.Body})
		return
	}

	switch {
	case errors.Is(err, portalloc.ErrNotInitialized):
		s.Logger.Error("port counter not initialized", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Port counter not initialized"})
	case errors.Is(err, portalloc.ErrLockTimeout), errors.Is(err, portalloc.ErrUnavailable):
		s.Logger.Error("port counter unavailable", "error", err)
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Port allocation temporarily unavailable"})
	default:
		s.Logger.Error("request failed", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
