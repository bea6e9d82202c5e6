package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FileExt is the extension of CBOR-encoded program files.
const FileExt = ".vmbc"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a Program to canonical CBOR, so equal programs
// encode to equal bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalProgram deserializes a Program and checks that its body decodes.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if _, err := p.Decode(); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	return &p, nil
}
