// Package deploy sequences a full deployment against the platform: validate
// inputs, allocate a host port, create the project and application, inject
// env vars and trigger the build.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"portway/internal/config"
	"portway/internal/coolify"
	"portway/internal/githubcheck"
	"portway/internal/history"
	"portway/internal/portalloc"
	"portway/internal/security"
)

const (
	// DefaultProvisionDelay is how long to wait after application creation
	// before env vars are accepted by the platform.
	DefaultProvisionDelay = 3 * time.Second

	// Status polling defaults for the CLI.
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
)

// Orchestrator runs the deployment flow. History may be nil when no audit
// trail is wanted (tests, one-shot CLI runs).
type Orchestrator struct {
	Client    *coolify.Client
	Allocator portalloc.Allocator
	Checker   *githubcheck.Checker
	History   *history.History
	Config    *config.Config
	Logger    *slog.Logger

	// ProvisionDelay is overridable so tests do not sleep.
	ProvisionDelay time.Duration
}

// NewOrchestrator wires the deployment flow together.
func NewOrchestrator(client *coolify.Client, alloc portalloc.Allocator, checker *githubcheck.Checker,
	hist *history.History, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Client:         client,
		Allocator:      alloc,
		Checker:        checker,
		History:        hist,
		Config:         cfg,
		Logger:         logger,
		ProvisionDelay: DefaultProvisionDelay,
	}
}

// SystemEnvVars builds the env vars injected into every application so it
// knows its own public address.
func SystemEnvVars(subdomain, baseDomain string) (fqdn string, vars map[string]string) {
	fqdn = subdomain + "." + baseDomain
	return fqdn, map[string]string{
		"COOLIFY_FQDN": fqdn,
		"URL":          "https://" + fqdn,
	}
}

// FullDeployment runs the complete flow. The host port is allocated before
// the first platform call; if a later step fails the port is not returned to
// the pool (the counter never reuses values) and the gap is recorded in
// history instead.
func (o *Orchestrator) FullDeployment(ctx context.Context, req *FullDeploymentRequest) (*FullDeploymentResponse, error) {
	projectName, err := security.ValidateProjectName(req.ProjectName)
	if err != nil {
		return nil, validationErrorf("invalid project name: %v", err)
	}

	subdomain, err := security.NormalizeSubdomain(req.Subdomain, o.Config.BaseDomain)
	if err != nil {
		return nil, validationErrorf("invalid subdomain: %v", err)
	}

	gitRepo, err := security.NormalizeGitURL(req.GitRepository)
	if err != nil {
		return nil, validationErrorf("invalid git repository: %v", err)
	}

	branch := req.GitBranch
	if branch == "" {
		branch = "main"
	}

	appName := security.AppNameFromRepo(gitRepo)

	// Pre-check the repository while nothing has been allocated or created
	// yet, so a typo costs nothing.
	if err := o.Checker.VerifyRepo(ctx, gitRepo, branch); err != nil {
		return nil, validationErrorf("repository check failed: %v", err)
	}

	hostPort, err := o.Allocator.AllocateNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating host port: %w", err)
	}

	o.Logger.Info("allocated host port", "port", hostPort, "subdomain", subdomain)

	resp, err := o.deployWithPort(ctx, projectName, subdomain, gitRepo, branch, appName, hostPort, req)
	o.record(ctx, projectName, subdomain, appName, hostPort, resp, err)
	return resp, err
}

// deployWithPort is the platform-facing part of the flow, after validation
// and port allocation.
func (o *Orchestrator) deployWithPort(ctx context.Context, projectName, subdomain, gitRepo, branch, appName string,
	hostPort int, req *FullDeploymentRequest) (*FullDeploymentResponse, error) {

	proj, err := o.Client.CreateProject(ctx, projectName, "Auto-created for "+appName)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	full, err := o.Client.GetProject(ctx, proj.UUID)
	if err != nil {
		return nil, fmt.Errorf("fetching project environments: %w", err)
	}
	if len(full.Environments) == 0 {
		return nil, fmt.Errorf("project %s has no environments", proj.UUID)
	}
	env := full.Environments[0]

	app, err := o.Client.CreateApplication(ctx, &coolify.ApplicationRequest{
		ProjectUUID:             proj.UUID,
		ServerUUID:              o.Config.DeployServerUUID,
		EnvironmentName:         env.Name,
		DestinationUUID:         o.Config.DeployServerUUID,
		GitRepository:           gitRepo,
		GitBranch:               branch,
		BuildPack:               o.Config.BuildPack,
		Name:                    appName,
		PortsExposes:            strconv.Itoa(o.Config.ContainerPort),
		PortsMappings:           fmt.Sprintf("%d:%d", hostPort, o.Config.ContainerPort),
		DockerRegistryImageName: o.Config.DockerhubImage,
		InstantDeploy:           false,
		BaseDirectory:           req.BaseDirectory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	// The platform rejects env vars until the application is provisioned.
	if o.ProvisionDelay > 0 {
		select {
		case <-time.After(o.ProvisionDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fqdn, systemVars := SystemEnvVars(subdomain, o.Config.BaseDomain)
	for key, value := range systemVars {
		if _, err := o.Client.SetEnvVar(ctx, app.UUID, key, value); err != nil {
			o.Logger.Warn("failed to set system env var", "key", key, "app", app.UUID, "error", err)
		}
	}

	// User vars are best-effort too: a bad key must not strand the
	// already-created application.
	for key, value := range req.EnvVars {
		if _, err := o.Client.SetEnvVar(ctx, app.UUID, key, value); err != nil {
			o.Logger.Warn("failed to set user env var", "key", key, "app", app.UUID, "error", err)
		}
	}

	if err := o.Client.Deploy(ctx, app.UUID); err != nil {
		return nil, fmt.Errorf("triggering deployment: %w", err)
	}

	status := coolify.StatusQueued
	if deployments, err := o.Client.ListDeployments(ctx, app.UUID); err == nil && len(deployments) > 0 {
		status = deployments[0].Status
	}

	return &FullDeploymentResponse{
		ProjectUUID:      proj.UUID,
		EnvironmentUUID:  env.UUID,
		AppUUID:          app.UUID,
		AppName:          appName,
		HostPort:         hostPort,
		DeploymentStatus: status,
		CoolifyURL:       o.Client.BaseURL() + "/applications/" + app.UUID,
		FQDN:             fqdn,
		URL:              "https://" + fqdn,
		Message:          "Full deployment initiated successfully",
	}, nil
}

// record writes the audit record for an attempted full deployment.
func (o *Orchestrator) record(ctx context.Context, projectName, subdomain, appName string,
	hostPort int, resp *FullDeploymentResponse, deployErr error) {
	if o.History == nil {
		return
	}

	rec := &history.Record{
		Subdomain:   subdomain,
		ProjectName: projectName,
		AppName:     appName,
		HostPort:    &hostPort,
	}

	if deployErr != nil {
		rec.Status = history.StatusFailed
		msg := deployErr.Error()
		rec.ErrorMessage = &msg
	} else {
		rec.Status = history.StatusInitiated
		rec.ProjectUUID = &resp.ProjectUUID
		rec.AppUUID = &resp.AppUUID
	}

	if _, err := o.History.Record(ctx, rec); err != nil {
		o.Logger.Error("failed to record deployment history", "subdomain", subdomain, "error", err)
	}
}

// PollStatus polls the latest deployment of an application until it reaches
// a terminal state or the timeout expires. progress is called once per poll
// with the observed status and may be nil.
func (o *Orchestrator) PollStatus(ctx context.Context, appUUID string, interval, timeout time.Duration,
	progress func(status string)) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deployments, err := o.Client.ListDeployments(ctx, appUUID)
		if err != nil {
			o.Logger.Warn("failed to check deployment status", "app", appUUID, "error", err)
		} else if len(deployments) > 0 {
			status := deployments[0].Status
			if progress != nil {
				progress(status)
			}
			if status == coolify.StatusFinished || status == coolify.StatusFailed {
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("timed out waiting for deployment %s: %w", appUUID, ctx.Err())
		case <-ticker.C:
		}
	}
}
