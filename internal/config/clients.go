package config

import (
	"fmt"

	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/remote"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

func (e *Env) NewGitHubClient(observer remote.Observer) (*github.Client, error) {
	httpClient, err := NewHTTPClient(e.GitHubEnv.CACertPath, e.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	return github.NewClient(github.Config{
		BaseURL:    e.APIURL,
		APIVersion: e.APIVersion,
		Token:      e.GitHubEnv.Token,
		HTTPClient: httpClient,
		Retry:      e.RetryPolicy(),
		Observer:   observer,
	})
}

func (e *Env) NewSonarQubeClient(observer remote.Observer) (*sonarqube.Client, error) {
	httpClient, err := NewHTTPClient(e.SonarQubeEnv.CACertPath, e.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("sonarqube: %w", err)
	}
	return sonarqube.NewClient(sonarqube.Config{
		BaseURL:    e.URL,
		Token:      e.SonarQubeEnv.Token,
		HTTPClient: httpClient,
		Retry:      e.RetryPolicy(),
		Observer:   observer,
	})
}
