package codec

import "github.com/fxamacker/cbor/v2"

// CBOR is a compact binary codec backed by github.com/fxamacker/cbor.
//
// Spill files are write-once/read-many and never shared across machines
// with different codec configuration, so the default encoding options are
// sufficient. CBOR typically halves spill-file size relative to JSON for
// numeric-heavy element types.
type CBOR struct{}

// Marshal encodes the value to CBOR.
func (CBOR) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

// Unmarshal decodes the CBOR data into v.
func (CBOR) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

// Name returns the unique name of the codec ("cbor").
func (CBOR) Name() string { return "cbor" }
