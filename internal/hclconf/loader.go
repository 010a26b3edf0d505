// Package hclconf parses HCL deployment profiles and translates them
// into the config model.
package hclconf

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/solkit/internal/config"
	"github.com/vk/solkit/internal/ctxlog"
)

// TokenEnvVar names the environment variable consulted when the profile
// does not carry a token. Profiles are usually committed; tokens are not.
const TokenEnvVar = "SOLKIT_TOKEN"

// Loader parses profile files.
type Loader struct{}

// NewLoader creates a profile Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses and decodes a single HCL profile file into a validated
// Profile.
func (l *Loader) Load(ctx context.Context, filePath string) (*config.Profile, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading deployment profile.", "path", filePath)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse profile %s: %s", filePath, diags.Error())
	}

	var raw profileFile
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode profile %s: %s", filePath, diags.Error())
	}

	profile := translate(&raw)
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", filePath, err)
	}
	logger.Debug("Profile loaded.", "path", filePath, "portalUrl", profile.Portal.URL)
	return profile, nil
}

// translate converts the HCL-specific schema into the agnostic model.
func translate(raw *profileFile) *config.Profile {
	var profile config.Profile
	if raw.Portal != nil {
		profile.Portal = config.Portal{
			URL:     raw.Portal.URL,
			Token:   raw.Portal.Token,
			Timeout: time.Duration(raw.Portal.TimeoutSeconds) * time.Second,
		}
	}
	if profile.Portal.Token == "" {
		profile.Portal.Token = os.Getenv(TokenEnvVar)
	}
	if raw.Deployment != nil {
		profile.Deployment = config.Deployment{
			Name:   raw.Deployment.Name,
			Folder: raw.Deployment.Folder,
		}
	}
	return &profile
}
