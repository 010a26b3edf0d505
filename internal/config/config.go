// Package config holds the format-agnostic deployment profile model.
// Parsing lives in hclconf; everything downstream of the loader depends
// only on these types.
package config

import (
	"errors"
	"time"
)

// Portal describes the remote content store connection.
type Portal struct {
	// URL is the REST root, for example "https://org.example.com/sharing/rest".
	URL   string
	Token string
	// Timeout bounds each remote call. Zero means the transport default.
	Timeout time.Duration
}

// Deployment carries the per-run deployment options.
type Deployment struct {
	// Name overrides the deployed Solution's title. Empty keeps the
	// source title.
	Name string
	// Folder is the destination folder for created items' container.
	Folder string
}

// Profile is a fully resolved deployment profile.
type Profile struct {
	Portal     Portal
	Deployment Deployment
}

// Validate checks the invariants the orchestrators rely on.
func (p *Profile) Validate() error {
	if p.Portal.URL == "" {
		return errors.New("profile: portal url is required")
	}
	return nil
}
