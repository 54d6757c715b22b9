package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"portway/internal/config"
	"portway/internal/coolify"
	"portway/internal/deploy"
	"portway/internal/githubcheck"
	"portway/internal/history"
	"portway/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	deployConfigFile string
	deployProject    string
	deploySubdomain  string
	deployRepo       string
	deployBranch     string
	deployBaseDir    string
	deployEnvVars    []string
	deployWait       bool
	deployTimeout    time.Duration
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a repository in one shot",
	Long: `Run a full deployment from the command line: allocate a host port, create
the project and application, set env vars and trigger the build.

With --wait the command polls until the deployment finishes or fails.`,
	Example: `  portway deploy --project MyProject --subdomain myapp \
    --repo https://github.com/user/myrepo --env API_KEY=secret --wait`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployConfigFile, "config", "c", getEnvOrDefault("PORTWAY_CONFIG_FILE", ""), "Path to portway.yaml configuration file")
	deployCmd.Flags().StringVar(&deployProject, "project", "", "Project name (letters and numbers only)")
	deployCmd.Flags().StringVar(&deploySubdomain, "subdomain", "", "Subdomain for the application")
	deployCmd.Flags().StringVar(&deployRepo, "repo", "", "GitHub repository URL")
	deployCmd.Flags().StringVar(&deployBranch, "branch", "main", "Git branch to deploy")
	deployCmd.Flags().StringVar(&deployBaseDir, "base-dir", "", "Base directory inside the repository")
	deployCmd.Flags().StringArrayVarP(&deployEnvVars, "env", "e", nil, "Environment variable as KEY=VALUE (repeatable)")
	deployCmd.Flags().BoolVarP(&deployWait, "wait", "w", false, "Poll until the deployment finishes or fails")
	deployCmd.Flags().DurationVar(&deployTimeout, "timeout", deploy.DefaultPollTimeout, "How long to wait with --wait")

	deployCmd.MarkFlagRequired("project")
	deployCmd.MarkFlagRequired("subdomain")
	deployCmd.MarkFlagRequired("repo")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	if deployConfigFile == "" {
		deployConfigFile = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths("portway.yaml"))
		if deployConfigFile == "" {
			return fmt.Errorf("configuration file not found, use --config")
		}
	}

	cfg, err := config.Load(deployConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	envVars, err := parseEnvVars(deployEnvVars)
	if err != nil {
		return err
	}

	alloc, err := buildAllocator(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := alloc.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize port counter: %w", err)
	}

	hist, err := history.New(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	// The CLI prints its own progress; keep structured logs out of the way.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orch := deploy.NewOrchestrator(
		coolify.NewClient(cfg.CoolifyURL, cfg.APIToken),
		alloc,
		githubcheck.New(cfg.GitHubToken),
		hist,
		cfg,
		logger,
	)

	fmt.Printf("Deploying %s (branch %s) as %s.%s\n", deployRepo, deployBranch, deploySubdomain, cfg.BaseDomain)

	resp, err := orch.FullDeployment(ctx, &deploy.FullDeploymentRequest{
		ProjectName:   deployProject,
		Subdomain:     deploySubdomain,
		GitRepository: deployRepo,
		GitBranch:     deployBranch,
		BaseDirectory: deployBaseDir,
		EnvVars:       envVars,
	})
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}

	fmt.Printf("Project:     %s (%s)\n", deployProject, resp.ProjectUUID)
	fmt.Printf("Application: %s (%s)\n", resp.AppName, resp.AppUUID)
	fmt.Printf("Host port:   %d\n", resp.HostPort)
	fmt.Printf("URL:         %s\n", resp.URL)
	fmt.Printf("Status:      %s\n", resp.DeploymentStatus)

	if !deployWait {
		fmt.Printf("\nView the deployment: %s\n", resp.CoolifyURL)
		return nil
	}

	fmt.Println("\nWaiting for deployment to finish...")
	status, err := orch.PollStatus(ctx, resp.AppUUID, deploy.DefaultPollInterval, deployTimeout, func(status string) {
		fmt.Printf("  status: %s\n", status)
	})
	if err != nil {
		return err
	}

	if status == coolify.StatusFailed {
		fmt.Printf("\nDeployment failed. Check the logs: %s\n", resp.CoolifyURL)
		os.Exit(1)
	}

	fmt.Printf("\nDeployment finished. Application is live at %s\n", resp.URL)
	return nil
}

// parseEnvVars turns repeated KEY=VALUE flags into a map.
func parseEnvVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q, expected KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
