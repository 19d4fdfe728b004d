package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/kazz187/provisioner/internal/project"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, json: format == "json"}
}

func (p *printer) encode(v any) {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (p *printer) fail(err error) int {
	code := exitFailure
	var verr *project.ValidationError
	if errors.As(err, &verr) {
		code = exitInvalid
	}
	if p.json {
		body := map[string]any{"error": err.Error()}
		if verr != nil {
			body["violations"] = verr.Violations
		}
		p.encode(body)
		return code
	}
	fmt.Fprintf(p.w, "%s %v\n", red("Error:"), err)
	return code
}

func (p *printer) outcome(o project.Outcome) int {
	if p.json {
		p.encode(o)
	} else {
		p.writeOutcome(o)
	}
	return exitCode(o.Status)
}

func (p *printer) batch(b project.BatchResult) int {
	statuses := make([]project.Status, len(b.Results))
	for i, o := range b.Results {
		statuses[i] = o.Status
	}
	if p.json {
		p.encode(b)
		return exitCode(statuses...)
	}
	for _, o := range b.Results {
		p.writeOutcome(o)
	}
	fmt.Fprintf(p.w, "%s %d total, %s succeeded, %s partial, %s failed\n",
		bold(string(b.Operation)+":"), b.Total,
		green(b.Succeeded), yellow(b.Partial), red(b.Failed))
	return exitCode(statuses...)
}

func (p *printer) writeOutcome(o project.Outcome) {
	fmt.Fprintf(p.w, "%s %s %s %s\n", statusMark(o.Status), bold(o.Key()), o.State, faint("run "+o.RunID))
	for _, r := range o.Resources {
		name := r.Name
		if r.PreExisting {
			name += " (pre-existing)"
		}
		fmt.Fprintf(p.w, "    %-16s %-40s %s\n", r.Kind, name, resourceState(r.State))
	}
	for _, e := range o.Errors {
		fmt.Fprintf(p.w, "    %s %s [%s] %s\n", red("!"), e.Step, e.Kind, e.Message)
	}
	if remaining := o.Remaining(); len(remaining) > 0 {
		fmt.Fprintf(p.w, "    %s %d resource(s) need manual cleanup\n", yellow("!"), len(remaining))
	}
}

func (p *printer) permission(u project.PermissionUpdate) int {
	if p.json {
		p.encode(u)
		return exitOK
	}
	fmt.Fprintf(p.w, "%s team %s has %s on %s\n", green("✔"), bold(u.Team), u.Permission, bold(project.Key(u.Org, u.Repo)))
	return exitOK
}

func (p *printer) preflight(r project.PreflightReport) int {
	code := exitOK
	if !r.Ready {
		code = exitFailure
	}
	if p.json {
		p.encode(r)
		return code
	}
	for _, c := range r.Checks {
		mark := green("✔")
		if !c.OK {
			mark = red("✘")
		}
		fmt.Fprintf(p.w, "%s %-10s %s\n", mark, c.Platform, c.Detail)
	}
	if r.Ready {
		fmt.Fprintf(p.w, "%s is ready to provision\n", bold(r.Org))
	} else {
		fmt.Fprintf(p.w, "%s is %s\n", bold(r.Org), red("not ready"))
	}
	return code
}

func (p *printer) history(outcomes []*project.Outcome) int {
	if p.json {
		p.encode(outcomes)
		return exitOK
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(p.w, faint("no outcomes recorded"))
		return exitOK
	}
	for _, o := range outcomes {
		fmt.Fprintf(p.w, "%s %s %-11s %-21s %s\n", statusMark(o.Status), o.StartedAt.Format("2006-01-02 15:04:05"), o.Operation, o.State, faint(o.RunID))
		for _, r := range o.Remaining() {
			fmt.Fprintf(p.w, "    %s %s %s\n", red("remaining"), r.Kind, r.Name)
		}
	}
	return exitOK
}

func statusMark(s project.Status) string {
	switch s {
	case project.StatusSuccess:
		return green("✔")
	case project.StatusPartialFailure:
		return yellow("◐")
	}
	return red("✘")
}

func resourceState(s project.ResourceState) string {
	switch s {
	case project.ResourceCreated, project.ResourceDeleted:
		return green(s)
	case project.ResourceRemaining:
		return red(s)
	case project.ResourceRolledBack:
		return yellow(s)
	}
	return faint(s)
}
