package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/provisioner/internal/permission"
	"github.com/kazz187/provisioner/internal/project"
	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/remote"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	APIKey   string `envconfig:"API_KEY"`
}

type GitHubEnv struct {
	APIURL        string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	APIVersion    string `envconfig:"GITHUB_API_VERSION" default:"2022-11-28"`
	Token         string `envconfig:"GITHUB_TOKEN" required:"true"`
	TemplateOwner string `envconfig:"GITHUB_TEMPLATE_OWNER"`
	TemplateRepo  string `envconfig:"GITHUB_TEMPLATE_REPO"`
	CACertPath    string `envconfig:"GITHUB_CA_CERT_PATH"`
}

type SonarQubeEnv struct {
	URL        string `envconfig:"SONARQUBE_URL" required:"true"`
	Token      string `envconfig:"SONARQUBE_TOKEN" required:"true"`
	CACertPath string `envconfig:"SONAR_CA_CERT_PATH"`
}

type SagaEnv struct {
	DefaultPermission    string        `envconfig:"DEFAULT_PERMISSION" default:"write"`
	TokenSecretName      string        `envconfig:"TOKEN_SECRET_NAME" default:"SONAR_TOKEN"`
	ProjectKeySecretName string        `envconfig:"PROJECT_KEY_SECRET_NAME" default:"SONAR_PROJECT_KEY"`
	BatchConcurrency     int           `envconfig:"BATCH_CONCURRENCY" default:"4"`
	MaxBatchSize         int           `envconfig:"MAX_BATCH_SIZE" default:"50"`
	RetryAttempts        int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay       time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay        time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5s"`
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"none"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".provisioner/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"provisioner/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type Env struct {
	BaseEnv
	GitHubEnv
	SonarQubeEnv
	SagaEnv
	StorageEnv
}

const namespace = "PROVISIONER"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("invalid env: %w", err)
	}
	return &env, nil
}

func (e *Env) validate() error {
	if e.GitHubEnv.Token == "" || e.SonarQubeEnv.Token == "" {
		return fmt.Errorf("%s_GITHUB_TOKEN and %s_SONARQUBE_TOKEN must not be empty", namespace, namespace)
	}
	if _, err := permission.Parse(e.SagaEnv.DefaultPermission); err != nil {
		return fmt.Errorf("%s_DEFAULT_PERMISSION: %w", namespace, err)
	}
	if (e.GitHubEnv.TemplateOwner == "") != (e.GitHubEnv.TemplateRepo == "") {
		return fmt.Errorf("%s_GITHUB_TEMPLATE_OWNER and %s_GITHUB_TEMPLATE_REPO must be set together", namespace, namespace)
	}
	if e.SagaEnv.RetryAttempts < 1 {
		return fmt.Errorf("%s_RETRY_ATTEMPTS must be at least 1", namespace)
	}
	if e.SagaEnv.TokenSecretName == "" || e.SagaEnv.ProjectKeySecretName == "" {
		return fmt.Errorf("secret names must not be empty")
	}
	switch e.StorageEnv.Type {
	case StorageNone, StorageLocal:
	case StorageS3:
		if e.StorageEnv.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required when %s_STORAGE_TYPE is s3", namespace, namespace)
		}
	default:
		return fmt.Errorf("%s_STORAGE_TYPE must be one of none, local, s3; got %q", namespace, e.StorageEnv.Type)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Defaults is what requests fall back to when they omit optional fields.
func (e *Env) Defaults() project.Defaults {
	level, _ := permission.Parse(e.SagaEnv.DefaultPermission)
	return project.Defaults{
		Template:     github.TemplateRef{Owner: e.GitHubEnv.TemplateOwner, Repo: e.GitHubEnv.TemplateRepo},
		Permission:   level,
		MaxBatchSize: e.SagaEnv.MaxBatchSize,
	}
}

func (e *Env) SecretNames() project.SecretNames {
	return project.SecretNames{Token: e.SagaEnv.TokenSecretName, ProjectKey: e.SagaEnv.ProjectKeySecretName}
}

func (e *SagaEnv) RetryPolicy() remote.RetryPolicy {
	return remote.RetryPolicy{
		MaxAttempts: e.RetryAttempts,
		BaseDelay:   e.RetryBaseDelay,
		MaxDelay:    e.RetryMaxDelay,
	}
}
