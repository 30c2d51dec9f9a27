// demo drives the runtime verifier through the compute protocol: a
// well-behaved sequence first, then two deliberately broken calls to show
// what a precondition and a postcondition violation look like.
package main

import (
	"fmt"
	"os"

	"github.com/rfielding/dbc/model"
	"github.com/rfielding/dbc/protocol"
	"github.com/rfielding/dbc/verify"
)

// Doc is a concrete instance of the compute contract. Data is readable
// only after a successful Compute.
type Doc struct {
	state protocol.Value
	data  []byte
}

func NewDoc() *Doc { return &Doc{state: protocol.NotReady} }

func (d *Doc) ContractType() string          { return "Doc" }
func (d *Doc) AbstractState() protocol.Value { return d.state }

func (d *Doc) Snapshot() map[string]any {
	var data any
	if d.data != nil {
		data = d.data
	}
	return map[string]any{"Data": data}
}

func (d *Doc) Initialize() { d.state = protocol.Initialized }

func (d *Doc) Compute(succeed bool) bool {
	if succeed {
		d.data = []byte("computed")
		d.state = protocol.Computed
		return true
	}
	d.state = protocol.Initialized
	return false
}

func (d *Doc) Data() []byte { return d.data }

func (d *Doc) Reset() {
	d.data = nil
	d.state = protocol.NotReady
}

func main() {
	built, err := model.ComputeSpec{}.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "building model:", err)
		os.Exit(1)
	}
	v, err := verify.New(built.Registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building verifier:", err)
		os.Exit(1)
	}

	d := NewDoc()
	step("construct", v.Construct(d))

	_, err = v.Do(d, "Initialize", nil, func() (any, error) {
		d.Initialize()
		return nil, nil
	})
	step("Initialize", err)

	_, err = v.Do(d, "Compute", nil, func() (any, error) {
		return d.Compute(true), nil
	})
	step("Compute", err)

	out, err := v.Do(d, "Data", nil, func() (any, error) {
		return d.Data(), nil
	})
	step("Data", err)
	fmt.Printf("  read %q in state %s\n", out, d.AbstractState())

	// Reset, then read before recomputing. The protocol requires state
	// Computed, so Enter rejects the call before the body runs.
	_, err = v.Do(d, "Reset", nil, func() (any, error) {
		d.Reset()
		return nil, nil
	})
	step("Reset", err)

	_, err = v.Do(d, "Data", nil, func() (any, error) {
		return d.Data(), nil
	})
	step("Data after Reset", err)

	// An implementation bug: Compute reports success but forgets the data.
	// The ensures clause catches it at exit.
	_, err = v.Do(d, "Initialize", nil, func() (any, error) {
		d.Initialize()
		return nil, nil
	})
	step("Initialize", err)

	_, err = v.Do(d, "Compute", nil, func() (any, error) {
		d.state = protocol.Computed // forgot to produce d.data
		return true, nil
	})
	step("buggy Compute", err)
}

func step(name string, err error) {
	if err != nil {
		fmt.Printf("%-18s FAIL: %v\n", name, err)
		return
	}
	fmt.Printf("%-18s ok\n", name)
}
