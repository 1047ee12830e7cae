package sign

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signer signs digests with a key it does not expose.
type Signer interface {
	PublicKey() PublicKey
	// Sign signs a 32-byte digest. Callers hash first.
	Sign(hash []byte) (Signature, error)
}

// PublicKey is the public half of a signing key.
type PublicKey interface {
	Address() Address
	Bytes() []byte
}

// Address is a chain account identifier.
type Address interface {
	fmt.Stringer
	Equals(other Address) bool
}

// Signature is an r || s || v signature.
type Signature []byte

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = 65

// Valid reports whether s has the recoverable secp256k1 length.
func (s Signature) Valid() bool { return len(s) == SignatureLength }

// RecoveryID returns v normalised to 0 or 1.
func (s Signature) RecoveryID() byte {
	v := s[SignatureLength-1]
	if v >= 27 {
		v -= 27
	}
	return v
}

// Raw returns a copy with v normalised to 0/1, the form go-ethereum's
// transaction signers and crypto.SigToPub expect.
func (s Signature) Raw() []byte {
	raw := make([]byte, len(s))
	copy(raw, s)
	if s.Valid() {
		raw[SignatureLength-1] = s.RecoveryID()
	}
	return raw
}

func (s Signature) String() string { return hexutil.Encode(s) }

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(str)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
