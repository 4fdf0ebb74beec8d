package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Platform is the build platform a job is classified as for artifact upload.
type Platform string

const (
	PlatformNone    Platform = ""
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
)

const (
	uploadArtifactAction = "actions/upload-artifact@v4"
	windowsArtifactPath  = "**/*.exe"
)

// unixArtifactPaths are the release binaries produced by the macOS and
// Linux builds: the profiler, capture, csvexport and the chrome importer.
var unixArtifactPaths = strings.Join([]string{
	"**/Tracy-release",
	"**/capture-release",
	"**/csvexport-release",
	"**/import-chrome-release",
}, "\n")

// ArtifactName returns the uploaded artifact name for a platform.
func (p Platform) ArtifactName() string {
	if p == PlatformNone {
		return ""
	}
	return "tracy-" + string(p)
}

// ArtifactPath returns the upload path pattern for a platform.
func (p Platform) ArtifactPath() string {
	switch p {
	case PlatformWindows:
		return windowsArtifactPath
	case PlatformMacOS, PlatformLinux:
		return unixArtifactPaths
	default:
		return ""
	}
}

// CheckoutRef builds the ref expression for rewritten checkout steps: the
// dispatch input when supplied, otherwise tag.
func CheckoutRef(inputName, tag string) string {
	return fmt.Sprintf("${{ github.event.inputs.%s || '%s' }}", inputName, tag)
}

func steps(job *yaml.Node) []*yaml.Node {
	s := lookup(job, "steps")
	if s == nil || s.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]*yaml.Node, 0, len(s.Content))
	for _, step := range s.Content {
		out = append(out, resolve(step))
	}
	return out
}

// RewriteCheckouts points every checkout step of job at repository and ref.
// Any existing "with" block on those steps is discarded. It returns the
// number of steps rewritten.
func RewriteCheckouts(job *yaml.Node, repository, ref string) int {
	n := 0
	for _, step := range steps(job) {
		if !strings.Contains(scalarValue(lookup(step, "uses")), "checkout") {
			continue
		}
		setKey(step, "with", mappingNode(
			"repository", stringNode(repository),
			"ref", stringNode(ref),
		))
		n++
	}
	return n
}

// SubstituteRef replaces token in every run script of job with the tag
// quoted as a string argument. It returns the number of steps changed.
func SubstituteRef(job *yaml.Node, token, tag string) int {
	if token == "" {
		return 0
	}
	quoted := "'" + tag + "'"
	n := 0
	for _, step := range steps(job) {
		run := lookup(step, "run")
		if run == nil || run.Kind != yaml.ScalarNode || !strings.Contains(run.Value, token) {
			continue
		}
		run.Value = strings.ReplaceAll(run.Value, token, quoted)
		n++
	}
	return n
}

// ClassifyPlatform decides which platform a job builds for, based on its
// runs-on value, its matrix os list, and finally its name or container.
func ClassifyPlatform(name string, job *yaml.Node) Platform {
	runsOn := flatText(lookup(job, "runs-on"))
	matrixOS := flatText(lookup(lookup(lookup(job, "strategy"), "matrix"), "os"))
	switch {
	case strings.Contains(runsOn, "windows") || strings.Contains(matrixOS, "windows"):
		return PlatformWindows
	case strings.Contains(runsOn, "macos") || strings.Contains(matrixOS, "macos"):
		return PlatformMacOS
	case strings.Contains(strings.ToLower(name), "linux") || hasKey(job, "container"):
		return PlatformLinux
	}
	return PlatformNone
}

func hasUpload(job *yaml.Node) bool {
	for _, step := range steps(job) {
		if strings.Contains(scalarValue(lookup(step, "uses")), "upload-artifact") {
			return true
		}
	}
	return false
}

// AddArtifactUpload appends an upload step to job unless it already uploads
// artifacts, has no steps, or cannot be classified. The platform the step
// was added for is returned, PlatformNone when nothing was added.
func AddArtifactUpload(name string, job *yaml.Node) Platform {
	s := lookup(job, "steps")
	if s == nil || s.Kind != yaml.SequenceNode || hasUpload(job) {
		return PlatformNone
	}
	platform := ClassifyPlatform(name, job)
	if platform == PlatformNone {
		return PlatformNone
	}
	s.Content = append(s.Content, mappingNode(
		"name", stringNode("Upload artifacts"),
		"uses", stringNode(uploadArtifactAction),
		"with", mappingNode(
			"name", stringNode(platform.ArtifactName()),
			"path", stringNode(platform.ArtifactPath()),
		),
	))
	return platform
}
