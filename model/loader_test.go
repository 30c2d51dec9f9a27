package model

import (
	"context"
	"testing"

	"github.com/rfielding/dbc/static"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const computeYAML = `
name: compute
protocols:
  - name: ComputeLifecycle
    initial: NotReady
    states: [NotReady, Initialized, Computed]
    rules:
      - op: Initialize
        from: [NotReady]
        outcomes:
          - next: [Initialized]
      - op: Compute
        from: [Initialized, Computed]
        outcomes:
          - result: true
            next: [Computed]
          - result: false
            next: [Initialized]
      - op: Data
        from: [Computed]
        outcomes:
          - next: [Computed]
      - op: Reset
        from: [NotReady, Initialized, Computed]
        outcomes:
          - next: [NotReady]
types:
  - name: Doc
    protocol: ComputeLifecycle
    invariants:
      - state != Computed || this.Data != nil
    operations:
      - name: Initialize
      - name: Compute
        ensures:
          - result != true || this.Data != nil
      - name: Data
        ensures:
          - result != nil
      - name: Reset
functions:
  - name: carelessReader
    params: [d]
    assumes:
      - d.state == NotReady
    blocks:
      - label: entry
        instrs:
          - call: {recv: d, type: Doc, op: Initialize}
          - call: {recv: d, type: Doc, op: Compute}
          - call: {dst: x, recv: d, type: Doc, op: Data}
        term:
          return: x
  - name: carefulReader
    params: [d]
    assumes:
      - d.state == NotReady
    blocks:
      - label: entry
        instrs:
          - call: {recv: d, type: Doc, op: Initialize}
          - call: {dst: ok, recv: d, type: Doc, op: Compute}
        term:
          if: {cond: ok == true, then: read, else: done}
      - label: read
        instrs:
          - call: {dst: x, recv: d, type: Doc, op: Data}
        term:
          goto: done
      - label: done
        term:
          return: ""
`

func TestParseAndBuild(t *testing.T) {
	f, err := Parse([]byte(computeYAML))
	require.NoError(t, err)
	assert.Equal(t, "compute", f.Name)

	built, err := f.Build()
	require.NoError(t, err)
	require.True(t, built.Registry.Frozen())

	dom, ok := built.Domain("ComputeLifecycle")
	require.True(t, ok)
	assert.Equal(t, 3, len(dom.Values))

	typ, ok := built.Registry.Type("Doc")
	require.True(t, ok)
	assert.Len(t, typ.Operations(), 4)
	assert.Len(t, built.Program.Funcs, 2)
}

// The loaded model behaves like the compiled-in one: the careful reader
// is clean and the careless one carries one unproven read.
func TestLoadedModelChecks(t *testing.T) {
	f, err := Parse([]byte(computeYAML))
	require.NoError(t, err)
	built, err := f.Build()
	require.NoError(t, err)

	report, err := static.NewChecker().Check(context.Background(), built.Program)
	require.NoError(t, err)

	require.Len(t, report.Diagnostics, 1)
	d := report.Diagnostics[0]
	assert.Equal(t, "Doc.Data", d.Operation)
	assert.Equal(t, "state == Computed", d.Clause)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"missing name": `
protocols:
  - name: P
    initial: A
    states: [A]
`,
		"protocol without states": `
name: m
protocols:
  - name: P
    initial: A
`,
		"rule without outcomes": `
name: m
protocols:
  - name: P
    initial: A
    states: [A]
    rules:
      - op: Go
        from: [A]
`,
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestBuildRejectsUnknownProtocol(t *testing.T) {
	f, err := Parse([]byte(`
name: m
types:
  - name: T
    protocol: Missing
`))
	require.NoError(t, err)
	_, err = f.Build()
	require.Error(t, err)
}

func TestBuildRejectsBadPredicate(t *testing.T) {
	f, err := Parse([]byte(`
name: m
types:
  - name: T
    invariants:
      - "state <"
`))
	require.NoError(t, err)
	_, err = f.Build()
	require.Error(t, err)
}

func TestComputeSpecBuildsAndChecks(t *testing.T) {
	var spec Spec = ComputeSpec{}
	assert.Equal(t, "compute", spec.Name())

	built, err := spec.Build()
	require.NoError(t, err)

	report, err := static.NewChecker().Check(context.Background(), built.Program)
	require.NoError(t, err)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "Doc.Data", report.Diagnostics[0].Operation)
}
