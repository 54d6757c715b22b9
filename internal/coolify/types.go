package coolify

// Project is a Coolify project, with environments when fetched by UUID.
type Project struct {
	UUID         string        `json:"uuid"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Environments []Environment `json:"environments,omitempty"`
}

// Environment is one environment inside a project.
type Environment struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Application is the identity Coolify returns for a created application.
type Application struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// ApplicationRequest is the payload for creating a public application.
// PortsMappings carries the "host:container" mapping with the allocated
// host port.
type ApplicationRequest struct {
	ProjectUUID             string `json:"project_uuid"`
	ServerUUID              string `json:"server_uuid"`
	EnvironmentName         string `json:"environment_name"`
	DestinationUUID         string `json:"destination_uuid"`
	GitRepository           string `json:"git_repository"`
	GitBranch               string `json:"git_branch"`
	BuildPack               string `json:"build_pack"`
	Name                    string `json:"name"`
	PortsExposes            string `json:"ports_exposes"`
	PortsMappings           string `json:"ports_mappings"`
	DockerRegistryImageName string `json:"docker_registry_image_name"`
	InstantDeploy           bool   `json:"instant_deploy"`
	BaseDirectory           string `json:"base_directory,omitempty"`
}

// EnvVar is the response for setting an environment variable.
type EnvVar struct {
	UUID string `json:"uuid,omitempty"`
}

// Deployment is one entry from the deployments listing.
type Deployment struct {
	Status string `json:"status"`
}

// Deployment status values reported by the platform.
const (
	StatusFinished   = "finished"
	StatusFailed     = "failed"
	StatusInProgress = "in_progress"
	StatusQueued     = "queued"
)
