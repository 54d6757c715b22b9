package deploy

import "fmt"

// FullDeploymentRequest is the façade's "deploy everything" request:
// project, application, env vars and deployment trigger in one call.
type FullDeploymentRequest struct {
	ProjectName   string            `json:"project_name"`
	Subdomain     string            `json:"subdomain"`
	GitRepository string            `json:"git_repository"`
	GitBranch     string            `json:"git_branch,omitempty"`
	BaseDirectory string            `json:"base_directory,omitempty"`
	EnvVars       map[string]string `json:"env_vars,omitempty"`
}

// FullDeploymentResponse reports the identities created by a full deployment.
type FullDeploymentResponse struct {
	ProjectUUID      string `json:"project_uuid"`
	EnvironmentUUID  string `json:"environment_uuid"`
	AppUUID          string `json:"app_uuid"`
	AppName          string `json:"app_name"`
	HostPort         int    `json:"host_port"`
	DeploymentStatus string `json:"deployment_status"`
	CoolifyURL       string `json:"coolify_url"`
	FQDN             string `json:"fqdn"`
	URL              string `json:"url"`
	Message          string `json:"message"`
}

// ValidationError marks a request rejected before any external call was
// made. The HTTP layer maps it to a 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
