package prepare

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/dusk-indust/tracy-build/internal/config"
	"github.com/dusk-indust/tracy-build/internal/fetch"
	"github.com/dusk-indust/tracy-build/internal/git"
	"github.com/dusk-indust/tracy-build/internal/logging"
	"github.com/dusk-indust/tracy-build/internal/workflow"
)

// ErrNoWorkflows is returned when none of the upstream workflows could be
// fetched.
var ErrNoWorkflows = errors.New("prepare: failed to fetch any workflows")

// Pipeline prepares a build branch for one upstream tag: it fetches the
// upstream workflows, merges them, and records the result in git.
type Pipeline struct {
	cfg      *config.ProjectConfig
	dir      string
	fetcher  fetch.Fetcher
	repo     *git.Repo
	progress *Progress
	log      *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithProgress sets the narrator. The default discards narration.
func WithProgress(p *Progress) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.progress = p
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.log = l
		}
	}
}

// New creates a pipeline working in dir. repo may be nil when only
// Generate is used.
func New(cfg *config.ProjectConfig, dir string, fetcher fetch.Fetcher, repo *git.Repo, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		cfg:      cfg,
		dir:      dir,
		fetcher:  fetcher,
		repo:     repo,
		progress: NewProgress(io.Discard),
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetched is an upstream workflow file that was retrieved.
type Fetched struct {
	Name string
	URL  string
	Body []byte
}

// Missing is an upstream workflow file that could not be retrieved.
type Missing struct {
	Name   string
	URL    string
	Reason string
}

// Generated is the in-memory result of fetching and merging.
type Generated struct {
	Tag      string
	Fetched  []Fetched
	Missing  []Missing
	Combined *workflow.Combined
	YAML     []byte
}

// Targets lists the upstream URLs for tag in configured order.
func (p *Pipeline) Targets(tag string) []fetch.Target {
	up := p.cfg.Upstream()
	targets := make([]fetch.Target, 0, len(p.cfg.Workflows))
	for _, w := range p.cfg.Workflows {
		targets = append(targets, fetch.Target{Name: w.File, URL: up.WorkflowURL(tag, w.File)})
	}
	return targets
}

// Generate fetches and merges the upstream workflows for tag without
// touching the working tree or git.
func (p *Pipeline) Generate(ctx context.Context, tag string) (*Generated, error) {
	if tag == "" {
		return nil, errors.New("prepare: tag is required")
	}
	gen := &Generated{Tag: tag}
	if err := p.fetch(ctx, gen); err != nil {
		return nil, err
	}
	if len(gen.Fetched) == 0 {
		p.progress.Printf("")
		p.progress.Fail("Failed to fetch any workflows")
		return gen, errors.WithStack(ErrNoWorkflows)
	}
	if err := p.merge(gen); err != nil {
		return gen, err
	}
	return gen, nil
}

func (p *Pipeline) fetch(ctx context.Context, gen *Generated) error {
	p.progress.Section("Fetching Tracy workflows for %s", gen.Tag)
	results, err := fetch.FetchAll(ctx, p.fetcher, p.Targets(gen.Tag))
	if err != nil {
		return errors.Wrap(err, "prepare: fetch workflows")
	}
	for _, res := range results {
		p.progress.Printf("Fetching %s...", res.Target.Name)
		switch {
		case res.Err != nil:
			p.progress.Fail("Failed: %v", res.Err)
			p.log.Warn("fetch failed", "url", res.Target.URL, "err", res.Err)
			gen.Missing = append(gen.Missing, Missing{Name: res.Target.Name, URL: res.Target.URL, Reason: res.Err.Error()})
		case !res.OK():
			code := res.Response.StatusCode
			p.progress.Fail("Failed: HTTP %d", code)
			if res.Response.Status() == fetch.StatusNotFound {
				p.progress.Hint("(Workflow may not exist for tag %s)", gen.Tag)
			}
			p.log.Warn("fetch failed", "url", res.Target.URL, "status", code)
			gen.Missing = append(gen.Missing, Missing{Name: res.Target.Name, URL: res.Target.URL, Reason: fmt.Sprintf("HTTP %d", code)})
		default:
			p.progress.OK("Fetched %s (%d bytes)", res.Target.Name, len(res.Response.Body))
			p.log.Debug("fetched workflow", "url", res.Target.URL)
			gen.Fetched = append(gen.Fetched, Fetched{Name: res.Target.Name, URL: res.Target.URL, Body: res.Response.Body})
		}
	}
	return nil
}

func (p *Pipeline) merge(gen *Generated) error {
	p.progress.Section("Generating combined workflow")

	fetched := make(map[string]Fetched, len(gen.Fetched))
	for _, f := range gen.Fetched {
		fetched[f.Name] = f
	}
	var sources []workflow.Source
	for _, w := range p.cfg.Workflows {
		f, ok := fetched[w.File]
		if !ok {
			continue
		}
		p.progress.Printf("Processing %s...", w.File)
		doc, err := workflow.Parse(w.File, f.Body)
		if err != nil {
			return err
		}
		sources = append(sources, workflow.Source{Prefix: w.Prefix, NameHint: w.NameHint, Doc: doc})
	}

	release, err := p.loadRelease()
	if err != nil {
		return err
	}
	combined, err := workflow.Merge(sources, release, p.cfg.MergeOptions(gen.Tag))
	if err != nil {
		return err
	}
	for _, r := range combined.Reports {
		p.progress.Printf("  Adding job: %s", r.Key)
		if r.Artifact != "" {
			p.progress.Printf("  Adding artifact upload: %s", r.Artifact)
		}
		if r.Substitutions > 0 {
			p.progress.Printf("  Substituted ref in %d step(s)", r.Substitutions)
		}
	}
	p.progress.Printf("Adding release job...")

	data, err := combined.Bytes(workflow.DefaultEncodeOptions)
	if err != nil {
		return err
	}
	gen.Combined = combined
	gen.YAML = data
	return nil
}

func (p *Pipeline) loadRelease() (*workflow.Job, error) {
	path := p.path(p.cfg.ReleaseTemplate)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "prepare: read release template")
	}
	return workflow.ParseRelease(p.cfg.ReleaseTemplate, data)
}

func (p *Pipeline) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.dir, rel)
}

// RunOptions control the git side of a run.
type RunOptions struct {
	Push bool
}

// Summary describes a completed run.
type Summary struct {
	Tag    string
	Branch string
	Output string
	Jobs   []string
	Pushed bool
}

// Run prepares the build branch for tag. Nothing in git is changed unless
// at least one upstream workflow was fetched and merged.
func (p *Pipeline) Run(ctx context.Context, tag string, opts RunOptions) (*Summary, error) {
	if p.repo == nil {
		return nil, errors.New("prepare: no git repository configured")
	}
	p.progress.Banner(fmt.Sprintf("Preparing build for Tracy %s", tag))

	gen, err := p.Generate(ctx, tag)
	if err != nil {
		return nil, err
	}

	branch := p.cfg.Branch(tag)
	if err := p.prepareBranch(ctx, branch, opts); err != nil {
		return nil, err
	}
	if err := p.writeFiles(gen); err != nil {
		return nil, err
	}
	if err := p.commit(ctx, tag); err != nil {
		return nil, err
	}
	if p.cfg.Mode == workflow.ModeTagPush {
		if err := p.tag(ctx, tag, opts); err != nil {
			return nil, err
		}
	}
	if err := p.push(ctx, branch, opts); err != nil {
		return nil, err
	}

	summary := &Summary{
		Tag:    tag,
		Branch: branch,
		Output: p.cfg.Output,
		Jobs:   gen.Combined.JobKeys(),
		Pushed: opts.Push,
	}
	p.report(summary)
	return summary, nil
}

// tolerate logs a failure of a best-effort cleanup step.
func (p *Pipeline) tolerate(step string, err error) {
	if err != nil {
		p.log.Warn("ignoring failed git step", "step", step, "err", err)
	}
}

func (p *Pipeline) prepareBranch(ctx context.Context, branch string, opts RunOptions) error {
	p.tolerate("checkout base", p.repo.Checkout(ctx, p.cfg.BaseBranch))

	p.progress.Section("Creating branch: %s", branch)
	if opts.Push {
		p.tolerate("fetch remote", p.repo.FetchRemote(ctx))
		exists, err := p.repo.RemoteBranchExists(ctx, branch)
		if err != nil {
			return errors.Wrap(err, "prepare: check remote branch")
		}
		if exists {
			p.progress.Printf("Remote branch %s exists, deleting...", branch)
			p.tolerate("delete remote branch", p.repo.DeleteRemoteBranch(ctx, branch))
		}
	}

	exists, err := p.repo.LocalBranchExists(ctx, branch)
	if err != nil {
		return errors.Wrap(err, "prepare: check local branch")
	}
	if exists {
		p.progress.Printf("Local branch %s exists, deleting...", branch)
		p.tolerate("delete local branch", p.repo.DeleteLocalBranch(ctx, branch))
	}
	return errors.Wrap(p.repo.CreateBranch(ctx, branch), "prepare: create branch")
}

func (p *Pipeline) writeFiles(gen *Generated) error {
	p.progress.Section("Writing workflows")
	rawDir := p.path(p.cfg.WorkflowsDir)
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return errors.Wrap(err, "prepare: create workflows dir")
	}
	for _, f := range gen.Fetched {
		path := filepath.Join(rawDir, f.Name)
		if err := os.WriteFile(path, f.Body, 0o644); err != nil {
			return errors.Wrapf(err, "prepare: save %s", f.Name)
		}
		p.progress.OK("Saved to %s", filepath.Join(p.cfg.WorkflowsDir, f.Name))
	}

	out := p.path(p.cfg.Output)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return errors.Wrap(err, "prepare: create output dir")
	}
	if err := os.WriteFile(out, gen.YAML, 0o644); err != nil {
		return errors.Wrap(err, "prepare: write combined workflow")
	}
	p.progress.OK("Written to %s", p.cfg.Output)
	return nil
}

func (p *Pipeline) identity() git.Identity {
	return git.Identity{Name: p.cfg.BotName, Email: p.cfg.BotEmail}
}

func (p *Pipeline) commit(ctx context.Context, tag string) error {
	p.progress.Section("Committing changes")
	if !p.repo.UserConfigured(ctx) {
		if err := p.repo.ConfigureUser(ctx, p.identity()); err != nil {
			return errors.Wrap(err, "prepare: configure git user")
		}
	}
	if err := p.repo.Add(ctx, filepath.ToSlash(p.cfg.Output)); err != nil {
		return errors.Wrap(err, "prepare: stage combined workflow")
	}
	if err := p.repo.Add(ctx, filepath.ToSlash(p.cfg.WorkflowsDir)+"/"); err != nil {
		return errors.Wrap(err, "prepare: stage upstream workflows")
	}
	msg := fmt.Sprintf("Add combined workflow for %s", tag)
	return errors.Wrap(p.repo.Commit(ctx, msg, p.identity()), "prepare: commit")
}

func (p *Pipeline) tag(ctx context.Context, tag string, opts RunOptions) error {
	p.progress.Section("Tagging %s", tag)
	exists, err := p.repo.LocalTagExists(ctx, tag)
	if err != nil {
		return errors.Wrap(err, "prepare: check local tag")
	}
	if exists {
		p.progress.Printf("Local tag %s exists, deleting...", tag)
		p.tolerate("delete local tag", p.repo.DeleteLocalTag(ctx, tag))
	}
	if err := p.repo.CreateTag(ctx, tag); err != nil {
		return errors.Wrap(err, "prepare: create tag")
	}
	if !opts.Push {
		return nil
	}
	p.tolerate("delete remote tag", p.repo.DeleteRemoteTag(ctx, tag))
	return errors.Wrap(p.repo.PushTag(ctx, tag), "prepare: push tag")
}

func (p *Pipeline) push(ctx context.Context, branch string, opts RunOptions) error {
	if !opts.Push {
		p.progress.Section("Skipping push (--no-push specified)")
		p.progress.Printf("To push manually: git push %s %s", p.repo.Remote(), branch)
		return nil
	}
	p.progress.Section("Pushing to remote")
	return errors.Wrap(p.repo.PushBranch(ctx, branch), "prepare: push branch")
}

func (p *Pipeline) report(s *Summary) {
	p.progress.Printf("")
	p.progress.Banner("✓ SUCCESS")
	p.progress.Printf("Branch: %s", s.Branch)
	p.progress.Printf("Combined workflow: %s", s.Output)
	if !s.Pushed {
		return
	}
	switch p.cfg.Mode {
	case workflow.ModeDispatch:
		p.progress.Printf("")
		p.progress.Printf("To trigger the build:")
		p.progress.Printf("  gh workflow run %s --ref %s -f %s=%s",
			filepath.Base(p.cfg.Output), s.Branch, p.cfg.InputName, s.Tag)
	case workflow.ModeTagPush:
		p.progress.Printf("")
		p.progress.Printf("The build starts from the pushed tag %s.", s.Tag)
	}
}
