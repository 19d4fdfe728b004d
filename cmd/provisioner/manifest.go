package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/provisioner/internal/project"
)

// loadManifest reads a create-multi manifest:
//
//	org_name: acme
//	projects:
//	  - repo_name: billing
//	    team_name: billing-maintainers
//	    team_permission: maintain
//	  - repo_name: ledger
//	    team_name: ledger-write
//
// repo_names may be used instead of projects for the shorthand form.
func loadManifest(path string) (project.CreateMultiProjectRequest, error) {
	var req project.CreateMultiProjectRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read manifest: %w", err)
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (project.CreateMultiProjectRequest, error) {
	var req project.CreateMultiProjectRequest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("parse manifest: %w", err)
	}
	return req, nil
}
