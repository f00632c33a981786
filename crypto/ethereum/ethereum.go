// Package ethereum provides secp256k1 keys and Ethereum style signatures
// for voters, relayers and election owners.
package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ballotrelay/ballotrelay/util"
)

// SignatureLength is the size of an ECDSA signature in bytes.
const SignatureLength = ethcrypto.SignatureLength

// SignKeys is an ECDSA key pair used for signing and signature recovery.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty SignKeys.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a fresh random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private key given as an hex string, with or without
// the 0x prefix.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the compressed public key and the private key as hex
// strings, without the 0x prefix.
func (k *SignKeys) HexString() (string, string) {
	pubHex := fmt.Sprintf("%x", ethcrypto.CompressPubkey(&k.Public))
	privHex := fmt.Sprintf("%x", ethcrypto.FromECDSA(&k.Private))
	return pubHex, privHex
}

// PublicKey returns the compressed public key.
func (k *SignKeys) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum address derived from the public key.
func (k *SignKeys) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the checksummed Ethereum address as a string.
func (k *SignKeys) AddressString() string {
	return k.Address().String()
}

// SignEthereum signs a message using the standard Ethereum personal sign
// prefix, so the signature can be verified by any Ethereum wallet.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, errors.New("no private key available")
	}
	return ethcrypto.Sign(Hash(message), &k.Private)
}

// SignRaw signs a precomputed 32 byte digest without any prefix hashing.
// Meant for typed data digests which are already domain separated.
func (k *SignKeys) SignRaw(digest []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, errors.New("no private key available")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	return ethcrypto.Sign(digest, &k.Private)
}

// Hash computes the Ethereum hash of a message, prepending the standard
// "\x19Ethereum Signed Message" prefix.
func Hash(message []byte) []byte {
	return HashRaw([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))
}

// HashRaw hashes data with Keccak256.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

// AddrFromPublicKey converts a compressed or uncompressed public key to an
// Ethereum address.
func AddrFromPublicKey(pub []byte) (common.Address, error) {
	var (
		pubKey *ecdsa.PublicKey
		err    error
	)
	switch len(pub) {
	case 33:
		pubKey, err = ethcrypto.DecompressPubkey(pub)
	case 65:
		pubKey, err = ethcrypto.UnmarshalPubkey(pub)
	default:
		return common.Address{}, fmt.Errorf("invalid public key length %d", len(pub))
	}
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

// PubKeyFromSignature recovers the compressed public key that created the
// personal sign signature of a message. Both raw {0,1} and legacy {27,28}
// recovery identifiers are accepted.
func PubKeyFromSignature(message, signature []byte) ([]byte, error) {
	pub, err := pubKeyFromDigest(Hash(message), signature)
	if err != nil {
		return nil, err
	}
	return ethcrypto.CompressPubkey(pub), nil
}

// AddrFromSignature recovers the address that created the personal sign
// signature of a message.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	pub, err := pubKeyFromDigest(Hash(message), signature)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// AddrFromSignatureRaw recovers the address that signed a precomputed 32
// byte digest.
func AddrFromSignatureRaw(digest, signature []byte) (common.Address, error) {
	pub, err := pubKeyFromDigest(digest, signature)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func pubKeyFromDigest(digest, signature []byte) (*ecdsa.PublicKey, error) {
	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("signature length not correct (%d)", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("bad recovery id %d", signature[64])
	}
	return ethcrypto.SigToPub(digest, sig)
}
