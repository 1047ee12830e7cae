// Package sign holds the hash-level signing primitives shared by the
// transaction signers.
//
// A Signer signs 32-byte digests and exposes its public key; it never hands
// out private key material. EthereumSigner keeps a secp256k1 key in memory:
//
//	signer, err := sign.NewEthereumSigner(os.Getenv("PRIVATE_KEY"))
//	if err != nil {
//	    return err
//	}
//	sig, err := signer.Sign(crypto.Keccak256([]byte("payload")))
//
// Signatures are 65 bytes, r || s || v, with v in {27, 28}.
package sign
