package workflow

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode selects one consistent combination of trigger clause and job
// post-processing for the combined workflow.
type Mode string

const (
	// ModeDispatch triggers on workflow_dispatch with a tag input and adds
	// artifact upload steps to build jobs.
	ModeDispatch Mode = "dispatch"
	// ModeTagPush triggers on pushed v* tags, grants contents: write, and
	// substitutes the upstream ref token in run scripts.
	ModeTagPush Mode = "tag-push"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDispatch || m == ModeTagPush
}

const (
	DefaultRepository = "wolfpld/tracy"
	DefaultName       = "Combined Tracy Build"
	DefaultInputName  = "tracy_tag"
	DefaultRefToken   = "${{ github.ref_name }}"
)

// Options control how documents are merged.
type Options struct {
	Tag        string
	Repository string
	Mode       Mode
	Name       string
	InputName  string
	RefToken   string
}

func (o Options) withDefaults() Options {
	if o.Repository == "" {
		o.Repository = DefaultRepository
	}
	if o.Mode == "" {
		o.Mode = ModeDispatch
	}
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.InputName == "" {
		o.InputName = DefaultInputName
	}
	if o.RefToken == "" {
		o.RefToken = DefaultRefToken
	}
	return o
}

// Source pairs a parsed document with the prefix its job keys get in the
// combined workflow. NameHint is prepended to job names when classifying
// their platform only.
type Source struct {
	Prefix   string
	NameHint string
	Doc      *Document
}

// JobReport describes what happened to one job during the merge.
type JobReport struct {
	Key           string
	Source        string
	Checkouts     int
	Substitutions int
	Artifact      string
}

// Combined is the merged workflow.
type Combined struct {
	root    *yaml.Node
	jobs    *yaml.Node
	Reports []JobReport
}

// Node returns the root mapping of the combined workflow.
func (c *Combined) Node() *yaml.Node { return c.root }

// JobKeys lists every job key, the release job included, in order.
func (c *Combined) JobKeys() []string { return keys(c.jobs) }

// Job returns the definition stored under key, or nil.
func (c *Combined) Job(key string) *yaml.Node { return lookup(c.jobs, key) }

// Merge combines the jobs of every source into one workflow and appends the
// release job, which depends on all of them. Inputs are not modified.
func Merge(sources []Source, release *Job, opts Options) (*Combined, error) {
	if release == nil || release.Node == nil {
		return nil, errors.New("workflow: release job template is required")
	}
	opts = opts.withDefaults()
	if !opts.Mode.Valid() {
		return nil, errors.Errorf("workflow: unknown mode %q", opts.Mode)
	}
	if opts.Tag == "" {
		return nil, errors.New("workflow: tag is required")
	}

	c := &Combined{jobs: mappingNode()}
	ref := CheckoutRef(opts.InputName, opts.Tag)

	for _, src := range sources {
		if src.Doc == nil {
			continue
		}
		for _, job := range src.Doc.Jobs() {
			key := src.Prefix + job.Name
			if hasKey(c.jobs, key) {
				return nil, errors.Errorf("workflow: duplicate job key %q from %s", key, src.Doc.Name)
			}
			node := clone(job.Node)
			report := JobReport{Key: key, Source: src.Doc.Name}
			report.Checkouts = RewriteCheckouts(node, opts.Repository, ref)
			switch opts.Mode {
			case ModeTagPush:
				report.Substitutions = SubstituteRef(node, opts.RefToken, opts.Tag)
			case ModeDispatch:
				report.Artifact = AddArtifactUpload(src.NameHint+job.Name, node).ArtifactName()
			}
			setKey(c.jobs, key, node)
			c.Reports = append(c.Reports, report)
		}
	}

	rel := clone(release.Node)
	setKey(rel, "needs", stringSequence(keys(c.jobs)))
	setKey(c.jobs, ReleaseJobKey, rel)

	c.root = mappingNode("name", stringNode(opts.Name))
	c.root.Content = append(c.root.Content, triggerClause(opts).Content...)
	setKey(c.root, "jobs", c.jobs)
	return c, nil
}

// triggerClause returns the mapping entries that precede jobs: "on" and,
// for tag pushes, the permissions block.
func triggerClause(opts Options) *yaml.Node {
	switch opts.Mode {
	case ModeTagPush:
		return mappingNode(
			"on", mappingNode(
				"push", mappingNode("tags", stringSequence([]string{"v*"})),
			),
			"permissions", mappingNode("contents", stringNode("write")),
		)
	default:
		return mappingNode(
			"on", mappingNode(
				"workflow_dispatch", mappingNode(
					"inputs", mappingNode(
						opts.InputName, mappingNode(
							"description", stringNode("Tracy tag"),
							"required", boolNode(false),
							"type", stringNode("string"),
							"default", stringNode(opts.Tag),
						),
					),
				),
			),
		)
	}
}
