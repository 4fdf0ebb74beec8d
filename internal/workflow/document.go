package workflow

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ReleaseJobKey is the key the release job is stored under, both in the
// release template file and in the combined workflow.
const ReleaseJobKey = "create-release"

// ParseError reports a document that could not be read as a workflow.
type ParseError struct {
	Document string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow: parse %s: %v", e.Document, e.Err)
	}
	return fmt.Sprintf("workflow: parse %s: %s", e.Document, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseError(doc, format string, args ...any) error {
	return errors.WithStack(&ParseError{Document: doc, Reason: fmt.Sprintf(format, args...)})
}

// Job is a single named job within a workflow document.
type Job struct {
	Name string
	Node *yaml.Node
}

// Document is a parsed upstream workflow. Key order is preserved.
type Document struct {
	Name string
	root *yaml.Node
}

// Parse decodes data as a workflow document. A document without a jobs
// field is valid and contributes no jobs.
func Parse(name string, data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithStack(&ParseError{Document: name, Err: err})
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, parseError(name, "document is empty")
	}
	root, err := expand(doc.Content[0])
	if err != nil {
		return nil, errors.WithStack(&ParseError{Document: name, Err: err})
	}
	if root.Kind != yaml.MappingNode {
		return nil, parseError(name, "top level is not a mapping")
	}
	d := &Document{Name: name, root: root}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) validate() error {
	if !hasKey(d.root, "jobs") {
		return nil
	}
	jobs := lookup(d.root, "jobs")
	if jobs == nil || jobs.Kind != yaml.MappingNode {
		// An explicit "jobs:" with no value decodes as a null scalar.
		if jobs != nil && jobs.Tag == "!!null" {
			return nil
		}
		return parseError(d.Name, "jobs is not a mapping")
	}
	for i := 0; i+1 < len(jobs.Content); i += 2 {
		name := jobs.Content[i].Value
		job := resolve(jobs.Content[i+1])
		if job == nil || job.Kind != yaml.MappingNode {
			return parseError(d.Name, "job %q is not a mapping", name)
		}
		if !hasKey(job, "steps") {
			continue
		}
		steps := lookup(job, "steps")
		if steps == nil || steps.Kind != yaml.SequenceNode {
			return parseError(d.Name, "job %q: steps is not a list", name)
		}
		for idx, step := range steps.Content {
			if !isMapping(step) {
				return parseError(d.Name, "job %q: step %d is not a mapping", name, idx)
			}
		}
	}
	return nil
}

// Jobs returns the document's jobs in order.
func (d *Document) Jobs() []Job {
	jobs := lookup(d.root, "jobs")
	if jobs == nil || jobs.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]Job, 0, len(jobs.Content)/2)
	for i := 0; i+1 < len(jobs.Content); i += 2 {
		out = append(out, Job{Name: jobs.Content[i].Value, Node: resolve(jobs.Content[i+1])})
	}
	return out
}

// ParseRelease reads the release job template, a document shaped as
// {create-release: JobDefinition}.
func ParseRelease(name string, data []byte) (*Job, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithStack(&ParseError{Document: name, Err: err})
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, parseError(name, "top level is not a mapping")
	}
	root, err := expand(doc.Content[0])
	if err != nil {
		return nil, errors.WithStack(&ParseError{Document: name, Err: err})
	}
	if root.Kind != yaml.MappingNode {
		return nil, parseError(name, "top level is not a mapping")
	}
	job := lookup(root, ReleaseJobKey)
	if job == nil {
		return nil, parseError(name, "missing %q", ReleaseJobKey)
	}
	if job.Kind != yaml.MappingNode {
		return nil, parseError(name, "%q is not a mapping", ReleaseJobKey)
	}
	return &Job{Name: ReleaseJobKey, Node: job}, nil
}
