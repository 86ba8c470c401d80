package cp

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/gitrdm/gokanroute/internal/blob"
)

// Assignments are persisted as deterministic CBOR inside a blob frame.
// Variables are matched by name when loading, so names must be unique among
// the saved variables.

type varRecord struct {
	Name      string `cbor:"1,keyasint"`
	Min       int64  `cbor:"2,keyasint"`
	Max       int64  `cbor:"3,keyasint"`
	Activated bool   `cbor:"4,keyasint"`
}

type assignmentRecord struct {
	Vars      []varRecord `cbor:"1,keyasint"`
	Objective *varRecord  `cbor:"2,keyasint,omitempty"`
}

var assignmentEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	assignmentEncMode = em
}

// MarshalBinary encodes the assignment as CBOR.
func (a *Assignment) MarshalBinary() ([]byte, error) {
	rec := assignmentRecord{Vars: make([]varRecord, 0, len(a.elements))}
	for _, e := range a.elements {
		rec.Vars = append(rec.Vars, varRecord{Name: e.Var.name, Min: e.Min, Max: e.Max, Activated: e.Activated})
	}
	if a.objective != nil {
		rec.Objective = &varRecord{Name: a.objective.Var.name, Min: a.objective.Min, Max: a.objective.Max, Activated: true}
	}
	return assignmentEncMode.Marshal(rec)
}

// UnmarshalBinary loads stored ranges into the variables of a with the same
// names. Every stored variable must exist in a.
func (a *Assignment) UnmarshalBinary(data []byte) error {
	var rec assignmentRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("cp: decode assignment: %w", err)
	}
	byName := make(map[string]*IntVarElement, len(a.elements))
	for i := range a.elements {
		byName[a.elements[i].Var.name] = &a.elements[i]
	}
	for _, r := range rec.Vars {
		e, ok := byName[r.Name]
		if !ok {
			return fmt.Errorf("cp: decode assignment: unknown variable %q", r.Name)
		}
		e.Min, e.Max, e.Activated = r.Min, r.Max, r.Activated
	}
	if rec.Objective != nil && a.objective != nil {
		a.objective.Min, a.objective.Max = rec.Objective.Min, rec.Objective.Max
	}
	return nil
}

// SaveTo writes the assignment to w as a blob frame compressed with tag.
func (a *Assignment) SaveTo(w io.Writer, tag blob.CompressionTag) error {
	payload, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	frame, err := blob.Encode(payload, tag)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// LoadFrom reads a frame written by SaveTo into a.
func (a *Assignment) LoadFrom(r io.Reader) error {
	frame, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	payload, err := blob.Decode(frame)
	if err != nil {
		return err
	}
	return a.UnmarshalBinary(payload)
}
