package workflow

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func jobNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	require.NotEmpty(t, doc.Content)
	return doc.Content[0]
}

func TestClassifyPlatform(t *testing.T) {
	tests := []struct {
		name    string
		jobName string
		job     string
		want    Platform
	}{
		{"runs-on windows", "win", `runs-on: windows-latest`, PlatformWindows},
		{"matrix macos", "mac", "strategy:\n  matrix:\n    os: [macos-13]\nruns-on: ${{ matrix.os }}", PlatformMacOS},
		{"matrix mixed prefers windows", "multi", "strategy:\n  matrix:\n    os: [macos-13, windows-2022]", PlatformWindows},
		{"runs-on case insensitive", "mac", `runs-on: macOS-14`, PlatformMacOS},
		{"runs-on list", "win", `runs-on: [self-hosted, Windows]`, PlatformWindows},
		{"linux by name", "build-linux-gcc", `runs-on: ubuntu-latest`, PlatformLinux},
		{"linux by container", "build", "runs-on: ubuntu-latest\ncontainer: archlinux", PlatformLinux},
		{"unclassified", "lint", `runs-on: ubuntu-latest`, PlatformNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPlatform(tt.jobName, jobNode(t, tt.job)))
		})
	}
}

func TestAddArtifactUpload_Paths(t *testing.T) {
	tests := []struct {
		jobName  string
		job      string
		wantName string
		wantPath string
	}{
		{"win", "runs-on: windows-latest\nsteps:\n  - run: build", "tracy-windows", "**/*.exe"},
		{"mac", "strategy:\n  matrix:\n    os: [macos-13]\nsteps:\n  - run: build", "tracy-macos",
			"**/Tracy-release\n**/capture-release\n**/csvexport-release\n**/import-chrome-release"},
		{"build-linux-gcc", "runs-on: ubuntu-latest\nsteps:\n  - run: build", "tracy-linux",
			"**/Tracy-release\n**/capture-release\n**/csvexport-release\n**/import-chrome-release"},
	}
	for _, tt := range tests {
		t.Run(tt.jobName, func(t *testing.T) {
			job := jobNode(t, tt.job)
			platform := AddArtifactUpload(tt.jobName, job)
			assert.Equal(t, tt.wantName, platform.ArtifactName())

			s := steps(job)
			require.Len(t, s, 2)
			upload := s[1]
			assert.Equal(t, "actions/upload-artifact@v4", lookup(upload, "uses").Value)
			assert.Equal(t, tt.wantName, lookup(lookup(upload, "with"), "name").Value)
			assert.Equal(t, tt.wantPath, lookup(lookup(upload, "with"), "path").Value)
		})
	}
}

func TestAddArtifactUpload_Skips(t *testing.T) {
	t.Run("existing upload", func(t *testing.T) {
		job := jobNode(t, "runs-on: windows-latest\nsteps:\n  - uses: actions/upload-artifact@v3\n")
		assert.Equal(t, PlatformNone, AddArtifactUpload("win", job))
		assert.Len(t, steps(job), 1)
	})
	t.Run("no steps", func(t *testing.T) {
		job := jobNode(t, "runs-on: windows-latest\nuses: ./.github/workflows/reusable.yml\n")
		assert.Equal(t, PlatformNone, AddArtifactUpload("win", job))
		assert.False(t, hasKey(job, "steps"))
	})
	t.Run("unclassified", func(t *testing.T) {
		job := jobNode(t, "runs-on: ubuntu-latest\nsteps:\n  - run: lint\n")
		assert.Equal(t, PlatformNone, AddArtifactUpload("lint", job))
		assert.Len(t, steps(job), 1)
	})
}

func TestRewriteCheckouts_Idempotent(t *testing.T) {
	job := jobNode(t, `steps:
  - uses: actions/checkout@v4
    with:
      fetch-depth: 0
      submodules: recursive
  - run: make
  - uses: actions/checkout@v3
`)
	ref := CheckoutRef(DefaultInputName, "v0.12.2")

	assert.Equal(t, 2, RewriteCheckouts(job, DefaultRepository, ref))
	first, err := yaml.Marshal(job)
	require.NoError(t, err)

	assert.Equal(t, 2, RewriteCheckouts(job, DefaultRepository, ref))
	second, err := yaml.Marshal(job)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	for _, idx := range []int{0, 2} {
		with := lookup(steps(job)[idx], "with")
		assert.Equal(t, []string{"repository", "ref"}, keys(with))
	}
	assert.Nil(t, lookup(steps(job)[1], "with"), "non-checkout steps are untouched")
}

func TestSubstituteRef(t *testing.T) {
	job := jobNode(t, `steps:
  - run: |
      git describe ${{ github.ref_name }}
      echo ${{ github.ref_name }}
  - run: echo untouched
  - uses: actions/checkout@v4
`)
	assert.Equal(t, 1, SubstituteRef(job, DefaultRefToken, "v0.12.2"))
	assert.Equal(t, "git describe 'v0.12.2'\necho 'v0.12.2'\n", lookup(steps(job)[0], "run").Value)
	assert.Equal(t, "echo untouched", lookup(steps(job)[1], "run").Value)

	assert.Equal(t, 0, SubstituteRef(job, "", "v0.12.2"))
}

func TestEncode_LiteralMultiline(t *testing.T) {
	node := mappingNode(
		"name", stringNode("demo"),
		"run", stringNode("line one   \nline two\n"),
		"path", stringNode(unixArtifactPaths),
	)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, node, DefaultEncodeOptions))
	out := buf.String()

	assert.Contains(t, out, "run: |\n  line one\n  line two\n")
	assert.Contains(t, out, "path: |-\n  **/Tracy-release\n")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("name:")), bytes.Index(buf.Bytes(), []byte("run:")), "keys keep insertion order")
	assert.Equal(t, "line one   \nline two\n", lookup(node, "run").Value, "the input tree is not modified")
}

func TestEncode_WithoutLiteralMultiline(t *testing.T) {
	node := mappingNode("run", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "a\nb\n", Style: yaml.DoubleQuotedStyle})

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, node, EncodeOptions{Indent: 2}))
	assert.Equal(t, "run: \"a\\nb\\n\"\n", buf.String())
}

func TestCombined_BytesRoundTrip(t *testing.T) {
	c, err := Merge(standardSources(t), mustRelease(t), Options{Tag: "v0.12.2"})
	require.NoError(t, err)

	data, err := c.Bytes(DefaultEncodeOptions)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run: |\n")

	var back struct {
		Jobs yaml.Node `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, c.JobKeys(), keys(&back.Jobs))
}
