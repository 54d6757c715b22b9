// Package security validates user-supplied deployment inputs before they are
// forwarded to the platform.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	gitURLPattern    = regexp.MustCompile(`^https://github\.com/[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+(?:\.git)?$`)
	subdomainPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	projectPattern   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// NormalizeGitURL validates a repository URL and normalizes it to the ".git"
// form expected by the platform. Only HTTPS GitHub URLs are allowed.
func NormalizeGitURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" || u.Host != "github.com" {
		return "", fmt.Errorf("only GitHub HTTPS URLs allowed, got %s://%s", u.Scheme, u.Host)
	}

	if !gitURLPattern.MatchString(rawURL) {
		return "", fmt.Errorf("URL contains invalid characters or format")
	}

	if !strings.HasSuffix(rawURL, ".git") {
		rawURL += ".git"
	}
	return rawURL, nil
}

// NormalizeSubdomain validates and sanitizes a user's chosen subdomain:
// lowercased, letters/digits/hyphens only, no leading or trailing hyphen.
// A trailing "." + baseDomain is stripped if the user included the full
// domain.
func NormalizeSubdomain(subdomain, baseDomain string) (string, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	subdomain = strings.TrimSuffix(subdomain, "."+baseDomain)

	if subdomain == "" {
		return "", fmt.Errorf("subdomain cannot be empty")
	}
	if !subdomainPattern.MatchString(subdomain) {
		return "", fmt.Errorf("subdomain can only contain letters, numbers, and hyphens")
	}
	if strings.HasPrefix(subdomain, "-") || strings.HasSuffix(subdomain, "-") {
		return "", fmt.Errorf("subdomain cannot start or end with a hyphen")
	}

	return subdomain, nil
}

// ValidateProjectName ensures a project name is letters and numbers only.
func ValidateProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("project name cannot be empty")
	}
	if !projectPattern.MatchString(name) {
		return "", fmt.Errorf("project name can only contain letters and numbers")
	}

	return name, nil
}

// AppNameFromRepo derives the application name from a normalized repository
// URL: the final path segment without the ".git" suffix.
func AppNameFromRepo(repoURL string) string {
	name := repoURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
