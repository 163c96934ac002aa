package common

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/saveio/paychan/errors"
)

const signatureLength = 65

// Signer signs packed protocol data on behalf of the local node.
type Signer interface {
	Address() Address
	Sign(data []byte) (Signature, error)
}

// KeySigner signs with a secp256k1 private key over the EIP-191 text hash.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address Address
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKeySigner(key), nil
}

func (this *KeySigner) Address() Address {
	return this.address
}

func (this *KeySigner) Sign(data []byte) (Signature, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), this.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverAddress returns the address which produced signature over data.
func RecoverAddress(data []byte, signature Signature) (Address, error) {
	if len(signature) != signatureLength {
		return EmptyAddress, errors.ErrInvalidSignature.Newf("signature length %d", len(signature))
	}
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return EmptyAddress, errors.Wrap(errors.ErrInvalidSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature fails unless signature over data was produced by signer.
func VerifySignature(signer Address, data []byte, signature Signature) error {
	addr, err := RecoverAddress(data, signature)
	if err != nil {
		return err
	}
	if addr != signer {
		return errors.ErrInvalidSignature.Newf("signed by %s, expected %s", addr.Hex(), signer.Hex())
	}
	return nil
}
