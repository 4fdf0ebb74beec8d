package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/tracy-build/internal/fetch"
	"github.com/dusk-indust/tracy-build/internal/workflow"
)

// WorkflowSource names one upstream workflow file and how its jobs are keyed
// in the combined workflow.
type WorkflowSource struct {
	File     string `yaml:"file"`
	Prefix   string `yaml:"prefix"`
	NameHint string `yaml:"nameHint,omitempty"`
}

// ProjectConfig holds settings loaded from prepare-build.yml. Every field is
// optional; Load fills in defaults.
type ProjectConfig struct {
	Repository      string           `yaml:"repository,omitempty"`
	RawBaseURL      string           `yaml:"rawBaseURL,omitempty"`
	Workflows       []WorkflowSource `yaml:"workflows,omitempty"`
	ReleaseTemplate string           `yaml:"releaseTemplate,omitempty"`
	Output          string           `yaml:"output,omitempty"`
	WorkflowsDir    string           `yaml:"workflowsDir,omitempty"`
	Mode            workflow.Mode    `yaml:"mode,omitempty"`
	WorkflowName    string           `yaml:"workflowName,omitempty"`
	InputName       string           `yaml:"inputName,omitempty"`
	RefToken        string           `yaml:"refToken,omitempty"`
	BaseBranch      string           `yaml:"baseBranch,omitempty"`
	BranchPrefix    string           `yaml:"branchPrefix,omitempty"`
	BotName         string           `yaml:"botName,omitempty"`
	BotEmail        string           `yaml:"botEmail,omitempty"`
	Timeout         time.Duration    `yaml:"timeout,omitempty"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// FileNames are the config files Load looks for, in order.
var FileNames = []string{"prepare-build.yml", "prepare-build.yaml"}

// Default returns the configuration used when no config file exists.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load attempts to read prepare-build.yml or prepare-build.yaml from dir.
// Returns the default config (not an error) if no config file exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	return Default(), nil
}

// LoadFile reads the config at path. A missing file is an error.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	cfg.Path = path
	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return &cfg, nil
}

func (c *ProjectConfig) applyDefaults() {
	if c.Repository == "" {
		c.Repository = workflow.DefaultRepository
	}
	if c.RawBaseURL == "" {
		c.RawBaseURL = fetch.DefaultBaseURL
	}
	if len(c.Workflows) == 0 {
		c.Workflows = []WorkflowSource{
			{File: "build.yml", Prefix: "tracy-"},
			{File: "linux.yml", Prefix: "tracy-linux-", NameHint: "linux-"},
		}
	}
	if c.ReleaseTemplate == "" {
		c.ReleaseTemplate = "create_release.yml"
	}
	if c.Output == "" {
		c.Output = filepath.Join(".github", "workflows", "build-combined.yml")
	}
	if c.WorkflowsDir == "" {
		c.WorkflowsDir = "tracy-workflows"
	}
	if c.Mode == "" {
		c.Mode = workflow.ModeDispatch
	}
	if c.WorkflowName == "" {
		c.WorkflowName = workflow.DefaultName
	}
	if c.InputName == "" {
		c.InputName = workflow.DefaultInputName
	}
	if c.RefToken == "" {
		c.RefToken = workflow.DefaultRefToken
	}
	if c.BaseBranch == "" {
		c.BaseBranch = "main"
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = "build-"
	}
	if c.BotName == "" {
		c.BotName = "github-actions[bot]"
	}
	if c.BotEmail == "" {
		c.BotEmail = "github-actions[bot]@users.noreply.github.com"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *ProjectConfig) normalize() {
	c.Repository = strings.Trim(strings.TrimSpace(c.Repository), "/")
	c.Mode = workflow.Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	for i := range c.Workflows {
		c.Workflows[i].File = strings.TrimSpace(c.Workflows[i].File)
	}
}

// Validate checks the config for values the pipeline cannot work with.
func (c *ProjectConfig) Validate() error {
	if !c.Mode.Valid() {
		return errors.Errorf("mode must be %q or %q, got %q", workflow.ModeDispatch, workflow.ModeTagPush, c.Mode)
	}
	if strings.Count(c.Repository, "/") != 1 {
		return errors.Errorf("repository must be owner/name, got %q", c.Repository)
	}
	files := make(map[string]bool, len(c.Workflows))
	prefixes := make(map[string]bool, len(c.Workflows))
	for i, w := range c.Workflows {
		if w.File == "" {
			return errors.Errorf("workflows[%d]: file is required", i)
		}
		if files[w.File] {
			return errors.Errorf("workflows[%d]: duplicate file %q", i, w.File)
		}
		if prefixes[w.Prefix] {
			return errors.Errorf("workflows[%d]: duplicate prefix %q", i, w.Prefix)
		}
		files[w.File] = true
		prefixes[w.Prefix] = true
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Branch returns the build branch name for tag.
func (c *ProjectConfig) Branch(tag string) string {
	return c.BranchPrefix + tag
}

// Upstream returns the location upstream workflows are fetched from.
func (c *ProjectConfig) Upstream() fetch.Upstream {
	return fetch.Upstream{BaseURL: c.RawBaseURL, Repository: c.Repository}
}

// MergeOptions returns the merge options for tag.
func (c *ProjectConfig) MergeOptions(tag string) workflow.Options {
	return workflow.Options{
		Tag:        tag,
		Repository: c.Repository,
		Mode:       c.Mode,
		Name:       c.WorkflowName,
		InputName:  c.InputName,
		RefToken:   c.RefToken,
	}
}
