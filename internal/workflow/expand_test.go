package workflow

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func mergeOne(t *testing.T, data string) *Combined {
	t.Helper()
	c, err := Merge([]Source{{Prefix: "tracy-", Doc: mustParse(t, "build.yml", data)}}, mustRelease(t), Options{Tag: "v0.12.2"})
	require.NoError(t, err)
	return c
}

func uploadName(t *testing.T, job *yaml.Node) string {
	t.Helper()
	s := steps(job)
	require.NotEmpty(t, s)
	last := s[len(s)-1]
	require.Equal(t, "actions/upload-artifact@v4", scalarValue(lookup(last, "uses")))
	return scalarValue(lookup(lookup(last, "with"), "name"))
}

func TestMerge_AnchorOutsideJobsIsInlined(t *testing.T) {
	c := mergeOne(t, `x-env: &env
  CC: clang
jobs:
  win:
    runs-on: windows-latest
    env: *env
    steps:
      - uses: actions/checkout@v4
`)

	out, err := c.Bytes(DefaultEncodeOptions)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "*env")
	assert.NotContains(t, string(out), "&env")

	var decoded struct {
		Jobs map[string]struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(out, &decoded), "combined workflow must parse on its own")
	assert.Equal(t, "clang", decoded.Jobs["tracy-win"].Env["CC"])
}

func TestMerge_MergeKeysAreApplied(t *testing.T) {
	c := mergeOne(t, `x-base: &base
  runs-on: windows-latest
  steps:
    - uses: actions/checkout@v4
jobs:
  win:
    <<: *base
  win2:
    <<: *base
    name: Second
  lin:
    <<: *base
    runs-on: ubuntu-latest
    container: archlinux:base-devel
`)

	require.Len(t, c.Reports, 3)
	for _, r := range c.Reports {
		assert.Equal(t, 1, r.Checkouts, r.Key)
	}
	assert.Equal(t, "tracy-windows", c.Reports[0].Artifact)
	assert.Equal(t, "tracy-windows", c.Reports[1].Artifact)
	assert.Equal(t, "tracy-linux", c.Reports[2].Artifact)

	assert.Equal(t, []string{"runs-on", "steps", "name"}, keys(c.Job("tracy-win2")))
	assert.Equal(t, "ubuntu-latest", scalarValue(lookup(c.Job("tracy-lin"), "runs-on")), "explicit keys win over merged ones")

	with := lookup(steps(c.Job("tracy-win"))[0], "with")
	assert.Equal(t, DefaultRepository, scalarValue(lookup(with, "repository")))

	out, err := c.Bytes(DefaultEncodeOptions)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<<")
}

func TestMerge_MergeKeyListPrecedence(t *testing.T) {
	c := mergeOne(t, `x-a: &a
  runs-on: macos-latest
x-b: &b
  runs-on: windows-latest
  timeout-minutes: 30
jobs:
  build:
    <<: [*a, *b]
    steps:
      - uses: actions/checkout@v4
`)

	job := c.Job("tracy-build")
	assert.Equal(t, "macos-latest", scalarValue(lookup(job, "runs-on")))
	assert.Equal(t, "30", scalarValue(lookup(job, "timeout-minutes")))
	assert.Equal(t, "tracy-macos", uploadName(t, job))
}

func TestMerge_SharedStepsGetTheirOwnUpload(t *testing.T) {
	c := mergeOne(t, `jobs:
  win:
    runs-on: windows-latest
    steps: &s
      - uses: actions/checkout@v4
  mac:
    runs-on: macos-latest
    steps: *s
`)

	assert.Equal(t, "tracy-windows", uploadName(t, c.Job("tracy-win")))
	assert.Equal(t, "tracy-macos", uploadName(t, c.Job("tracy-mac")))
	assert.Len(t, steps(c.Job("tracy-win")), 2)
	assert.Len(t, steps(c.Job("tracy-mac")), 2)
}

func TestParseRelease_ExpandsMergeKeys(t *testing.T) {
	rel, err := ParseRelease("create_release.yml", []byte(`x-base: &base
  runs-on: ubuntu-latest
create-release:
  <<: *base
  steps:
    - uses: actions/download-artifact@v4
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"runs-on", "steps"}, keys(rel.Node))
}

func TestParse_AliasErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"self reference", "jobs:\n  a: &x\n    steps:\n      - *x\n"},
		{"merge scalar", "jobs:\n  a:\n    <<: 3\n"},
		{"merge list of scalars", "x: &v 1\njobs:\n  a:\n    <<: [*v]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("build.yml", []byte(tt.data))
			require.Error(t, err)
			var perr *ParseError
			assert.True(t, errors.As(err, &perr), "expected *ParseError, got %T", err)
		})
	}
}
