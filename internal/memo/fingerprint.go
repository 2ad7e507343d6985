package memo

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

var encMode cbor.EncMode

// fingerprintKey separates memo fingerprints from every other hash the
// system computes over the same bytes.
var fingerprintKey = [32]byte{
	's', 'i', 't', 'e', 'g', 'e', 'n', '.', 'm', 'e', 'm', 'o', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

func init() {
	// nil and empty slices must hash alike: JSON persistence drops empty
	// lists tagged omitempty.
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("memo: CBOR encoder initialization failed: " + err.Error())
	}
}

// Fingerprint returns the hex BLAKE3 keyed hash of the memo's canonical
// CBOR encoding. Equal memos produce equal fingerprints.
func Fingerprint(m Memo) string {
	data, err := encMode.Marshal(m.snapshot())
	if err != nil {
		// Only plain structs, strings and slices are encoded.
		panic("memo: canonical encoding failed: " + err.Error())
	}
	return hex.EncodeToString(keyedHash(fingerprintKey, data))
}

// Verify checks that a loaded memo was written with the current schema and
// still hashes to the fingerprint recorded alongside it.
func Verify(m Memo, recorded string) error {
	if m.schema != SchemaVersion {
		return &SchemaMismatch{
			ExpectedSchema: SchemaVersion,
			ActualSchema:   m.schema,
			Expected:       recorded,
		}
	}
	actual := Fingerprint(m)
	if actual != recorded {
		return &SchemaMismatch{
			ExpectedSchema: SchemaVersion,
			ActualSchema:   m.schema,
			Expected:       recorded,
			Actual:         actual,
		}
	}
	return nil
}

// CanonicalHash hashes v's canonical CBOR encoding under key. Other packages
// use it to derive their own deterministic identifiers.
func CanonicalHash(key [32]byte, v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return keyedHash(key, data), nil
}

func keyedHash(key [32]byte, data []byte) []byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("memo: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	return hasher.Sum(nil)
}
