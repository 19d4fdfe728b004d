package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/provisioner/internal/config"
	"github.com/kazz187/provisioner/internal/project"
	"github.com/kazz187/provisioner/pkg/clog"
)

const (
	exitOK             = 0
	exitFailure        = 1
	exitInvalid        = 2
	exitPartialFailure = 3
)

var (
	app = kingpin.New("provisioner", "Provision and decommission projects across GitHub and SonarQube")

	outputFormat = app.Flag("output", "Output format").Short('o').Default("text").Enum("text", "json")
	noColor      = app.Flag("no-color", "Disable coloured output").Bool()
	verbose      = app.Flag("verbose", "Log every saga step to stderr").Short('v').Bool()

	createCmd        = app.Command("create", "Provision one project")
	createOrg        = createCmd.Flag("org", "Organization").Required().String()
	createRepo       = createCmd.Flag("repo", "Repository name").Required().String()
	createTeam       = createCmd.Flag("team", "Team name; defaults to {repo}-{permission}").String()
	createPermission = createCmd.Flag("permission", "Team permission (read, triage, write, maintain, admin)").String()
	createTemplate   = createCmd.Flag("template", "Template repository as owner/repo").String()

	createMultiCmd  = app.Command("create-multi", "Provision every project in a manifest")
	createMultiFile = createMultiCmd.Flag("file", "YAML manifest").Short('f').Required().ExistingFile()

	grantCmd        = app.Command("grant", "Set a team's permission on a repository")
	grantOrg        = grantCmd.Flag("org", "Organization").Required().String()
	grantRepo       = grantCmd.Flag("repo", "Repository name").Required().String()
	grantTeam       = grantCmd.Flag("team", "Team name").Required().String()
	grantPermission = grantCmd.Flag("permission", "New permission (read, triage, write, maintain, admin)").Required().String()

	deleteCmd  = app.Command("delete", "Decommission one project")
	deleteOrg  = deleteCmd.Flag("org", "Organization").Required().String()
	deleteRepo = deleteCmd.Flag("repo", "Repository name").Required().String()

	deleteMultiCmd   = app.Command("delete-multi", "Decommission several projects of one organization")
	deleteMultiOrg   = deleteMultiCmd.Flag("org", "Organization").Required().String()
	deleteMultiRepos = deleteMultiCmd.Arg("repos", "Repository names").Required().Strings()

	checkCmd = app.Command("check", "Check that both platforms are reachable for an organization")
	checkOrg = checkCmd.Flag("org", "Organization").Required().String()

	historyCmd   = app.Command("history", "Show the stored outcomes of a project, newest first")
	historyOrg   = historyCmd.Flag("org", "Organization").Required().String()
	historyRepo  = historyCmd.Flag("repo", "Repository name").Required().String()
	historyLimit = historyCmd.Flag("limit", "Maximum number of outcomes").Default("20").Int()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	color.NoColor = color.NoColor || *noColor || *outputFormat == "json"

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(
		clog.NewTextHandler(os.Stderr, clog.WithLevel(logLevel), clog.WithColor(!color.NoColor)),
	)))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitInvalid)
	}
	service, err := newService(context.Background(), env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}

	// Ctrl-C stops the sagas between steps; created resources are still
	// compensated before the command returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, command, service, newPrinter(os.Stdout, *outputFormat)))
}

func newService(ctx context.Context, env *config.Env) (*project.Service, error) {
	gh, err := env.NewGitHubClient(nil)
	if err != nil {
		return nil, err
	}
	sq, err := env.NewSonarQubeClient(nil)
	if err != nil {
		return nil, err
	}
	repo, err := env.NewRepository(ctx)
	if err != nil {
		return nil, err
	}
	provisioner := project.NewProvisioner(gh, sq,
		project.WithSecretNames(env.SecretNames()),
		project.WithRepository(repo),
	)
	return project.NewService(provisioner, project.NewCoordinator(env.BatchConcurrency), env.Defaults()), nil
}

func run(ctx context.Context, command string, service *project.Service, p *printer) int {
	switch command {
	case createCmd.FullCommand():
		req, err := createRequest(*createOrg, *createRepo, *createTeam, *createPermission, *createTemplate, service.Defaults())
		if err != nil {
			return p.fail(err)
		}
		outcome, err := service.CreateProject(ctx, req)
		if err != nil {
			return p.fail(err)
		}
		return p.outcome(outcome)

	case createMultiCmd.FullCommand():
		req, err := loadManifest(*createMultiFile)
		if err != nil {
			return p.fail(err)
		}
		batch, err := service.CreateMultiProject(ctx, req)
		if err != nil {
			return p.fail(err)
		}
		return p.batch(batch)

	case grantCmd.FullCommand():
		update, err := service.UpdateRepoPermission(ctx, project.UpdateRepoPermissionRequest{
			OrgName:       *grantOrg,
			RepoName:      *grantRepo,
			TeamName:      *grantTeam,
			NewPermission: *grantPermission,
		})
		if err != nil {
			return p.fail(err)
		}
		return p.permission(update)

	case deleteCmd.FullCommand():
		outcome, err := service.DeleteProject(ctx, project.DeleteProjectRequest{OrgName: *deleteOrg, RepoName: *deleteRepo})
		if err != nil {
			return p.fail(err)
		}
		return p.outcome(outcome)

	case deleteMultiCmd.FullCommand():
		batch, err := service.DeleteMultiProject(ctx, project.DeleteMultiProjectRequest{OrgName: *deleteMultiOrg, RepoNames: *deleteMultiRepos})
		if err != nil {
			return p.fail(err)
		}
		return p.batch(batch)

	case checkCmd.FullCommand():
		report, err := service.Preflight(ctx, *checkOrg)
		if err != nil {
			return p.fail(err)
		}
		return p.preflight(report)

	case historyCmd.FullCommand():
		outcomes, err := service.History(ctx, project.HistoryRequest{OrgName: *historyOrg, RepoName: *historyRepo, Limit: *historyLimit})
		if err != nil {
			return p.fail(err)
		}
		return p.history(outcomes)
	}
	return p.fail(fmt.Errorf("unknown command %q", command))
}

// createRequest fills the team name the way the batch shorthand does when
// none is given.
func createRequest(org, repo, team, perm, template string, defaults project.Defaults) (project.CreateProjectRequest, error) {
	req := project.CreateProjectRequest{
		OrgName:        org,
		RepoName:       repo,
		TeamName:       team,
		TeamPermission: perm,
	}
	if template != "" {
		owner, name, ok := strings.Cut(template, "/")
		if !ok {
			return req, fmt.Errorf("--template must be owner/repo, got %q", template)
		}
		req.TemplateOwner, req.TemplateRepo = owner, name
	}
	if req.TeamName == "" {
		level := perm
		if level == "" {
			level = defaults.Permission.String()
		}
		req.TeamName = repo + "-" + level
	}
	return req, nil
}

func exitCode(statuses ...project.Status) int {
	code := exitOK
	for _, s := range statuses {
		switch s {
		case project.StatusPartialFailure:
			return exitPartialFailure
		case project.StatusFailure:
			code = exitFailure
		}
	}
	return code
}
