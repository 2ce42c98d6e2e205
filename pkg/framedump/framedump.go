// Package framedump is the on-disk form of a calling-frame context.
//
// A host shim that can see its runtime's frames writes one Dump per
// procedure: the raw instruction buffer, the constant pool, the encoding it
// was compiled with and, when captured mid-call, the executing offset. Dumps
// are CBOR with integer keys, encoded canonically so identical frames produce
// identical files.
package framedump

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/kworder/pkg/bytecode"
	"github.com/chazu/kworder/pkg/inspect"
)

// FormatVersion is written into every dump.
const FormatVersion = 1

// NoOffset marks a dump captured outside any call.
const NoOffset = -1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("framedump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Dump is one captured frame.
type Dump struct {
	Version      int      `cbor:"1,keyasint"`
	Procedure    string   `cbor:"2,keyasint"`
	Magic        uint16   `cbor:"3,keyasint,omitempty"`
	HaveArgument int      `cbor:"4,keyasint,omitempty"`
	ArgWidth     int      `cbor:"5,keyasint,omitempty"`
	Code         []byte   `cbor:"6,keyasint"`
	Consts       []any    `cbor:"7,keyasint"`
	Offset       int      `cbor:"8,keyasint"`
	Digest       [32]byte `cbor:"9,keyasint"` // sha256 of Code
}

// New builds a dump of code and consts with the pinned CPython 2.7 encoding
// declared.
func New(procedure string, code []byte, consts []any, offset int) *Dump {
	return &Dump{
		Version:      FormatVersion,
		Procedure:    procedure,
		Magic:        bytecode.Python27.Magic,
		HaveArgument: bytecode.Python27.HaveArgument,
		ArgWidth:     bytecode.Python27.ArgWidth,
		Code:         code,
		Consts:       consts,
		Offset:       offset,
		Digest:       sha256.Sum256(code),
	}
}

// Frame converts the dump into the extractor's input.
func (d *Dump) Frame() inspect.Frame {
	return inspect.Frame{
		Procedure: d.Procedure,
		Code:      d.Code,
		Consts:    d.Consts,
		Offset:    d.Offset,
		Encoding: bytecode.Encoding{
			Magic:        d.Magic,
			HaveArgument: d.HaveArgument,
			ArgWidth:     d.ArgWidth,
		},
	}
}

// HasOffset reports whether the dump was captured at a call.
func (d *Dump) HasOffset() bool {
	return d.Offset >= 0
}

// Marshal serializes a Dump to CBOR bytes.
func Marshal(d *Dump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// Unmarshal deserializes a Dump from CBOR bytes and verifies its digest.
func Unmarshal(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("framedump: unmarshal: %w", err)
	}
	if d.Version != FormatVersion {
		return nil, fmt.Errorf("framedump: unsupported format version %d", d.Version)
	}
	if sha256.Sum256(d.Code) != d.Digest {
		return nil, fmt.Errorf("framedump: code digest mismatch for %q", d.Procedure)
	}
	return &d, nil
}

// ReadFile loads a dump from path.
func ReadFile(path string) (*Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("framedump: %w", err)
	}
	d, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// WriteFile stores d at path.
func WriteFile(path string, d *Dump) error {
	data, err := Marshal(d)
	if err != nil {
		return fmt.Errorf("framedump: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("framedump: %w", err)
	}
	return nil
}
