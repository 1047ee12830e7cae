package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	_ Signer    = (*EthereumSigner)(nil)
	_ PublicKey = EthereumPublicKey{}
	_ Address   = EthereumAddress{}
)

// EthereumAddress is an Address backed by a 20-byte account address.
type EthereumAddress struct{ common.Address }

func NewEthereumAddress(addr common.Address) EthereumAddress { return EthereumAddress{addr} }

// String returns the EIP-55 checksummed form.
func (a EthereumAddress) String() string { return a.Address.Hex() }

func (a EthereumAddress) Equals(other Address) bool {
	if o, ok := other.(EthereumAddress); ok {
		return a.Address == o.Address
	}
	return strings.EqualFold(a.String(), other.String())
}

// EthereumPublicKey is a secp256k1 public key.
type EthereumPublicKey struct{ *ecdsa.PublicKey }

func (p EthereumPublicKey) Address() Address {
	return EthereumAddress{ethcrypto.PubkeyToAddress(*p.PublicKey)}
}

// Bytes returns the 65-byte uncompressed encoding.
func (p EthereumPublicKey) Bytes() []byte { return ethcrypto.FromECDSAPub(p.PublicKey) }

// EthereumSigner signs with an in-memory secp256k1 key. Signatures are
// deterministic (RFC 6979) for a given key and digest.
type EthereumSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  EthereumPublicKey
}

// NewEthereumSigner parses a hex private key, with or without 0x prefix.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return newEthereumSigner(key), nil
}

func newEthereumSigner(key *ecdsa.PrivateKey) *EthereumSigner {
	return &EthereumSigner{
		privateKey: key,
		publicKey:  EthereumPublicKey{&key.PublicKey},
	}
}

func (s *EthereumSigner) PublicKey() PublicKey { return s.publicKey }

// EthAddress is PublicKey().Address() without the interface round-trip.
func (s *EthereumSigner) EthAddress() common.Address {
	return ethcrypto.PubkeyToAddress(*s.publicKey.PublicKey)
}

func (s *EthereumSigner) Sign(hash []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return Signature(sig), nil
}

// GeneratedKey is a freshly created account.
type GeneratedKey struct {
	Address    common.Address
	PrivateKey string // 0x-prefixed hex
}

// GenerateEthereumKey creates a random secp256k1 account.
func GenerateEthereumKey() (GeneratedKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return GeneratedKey{
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: hexutil.Encode(ethcrypto.FromECDSA(key)),
	}, nil
}

// RecoverAddressFromHash returns the account that produced sig over hash.
func RecoverAddressFromHash(hash []byte, sig Signature) (common.Address, error) {
	if !sig.Valid() {
		return common.Address{}, fmt.Errorf("invalid signature length: got %d, want %d", len(sig), SignatureLength)
	}
	pub, err := ethcrypto.SigToPub(hash, sig.Raw())
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
