package audit

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// Checkpoint commits to the chain head: its size and the hash of its last record.
type Checkpoint struct {
	_         struct{} `cbor:",toarray"`
	Algorithm string
	Size      uint64
	TailHash  []byte
	IssuedAt  int64
}

// Signer produces COSE_Sign1 (ES256) envelopes over checkpoints.
type Signer struct {
	key    *ecdsa.PrivateKey
	signer cose.Signer
	keyID  []byte
}

func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, errors.New("checkpoint key must be a P-256 private key")
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create cose signer: %w", err)
	}
	kid, err := KeyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, signer: signer, keyID: kid}, nil
}

// GenerateSigner creates a signer with a fresh key.
func GenerateSigner() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate checkpoint key: %w", err)
	}
	return NewSigner(key)
}

// LoadSignerPEM reads a PKCS#8 or SEC 1 encoded P-256 key.
func LoadSignerPEM(data []byte) (*Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("checkpoint key: no PEM block")
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ec, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("checkpoint key: not an ECDSA key")
		}
		return NewSigner(ec)
	}
	ec, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("checkpoint key: %w", err)
	}
	return NewSigner(ec)
}

func (s *Signer) PublicKey() *ecdsa.PublicKey { return &s.key.PublicKey }

// PublicKeyPEM encodes the verification key for distribution to auditors.
func (s *Signer) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func (s *Signer) Sign(cp Checkpoint) ([]byte, error) {
	payload, err := recordEnc.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
				cose.HeaderLabelKeyID:     s.keyID,
			},
		},
		Payload: payload,
	}
	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		return nil, fmt.Errorf("sign checkpoint: %w", err)
	}
	return msg.MarshalCBOR()
}

// VerifyCheckpoint checks the envelope signature and decodes the checkpoint.
func VerifyCheckpoint(raw []byte, pub *ecdsa.PublicKey) (*Checkpoint, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return nil, fmt.Errorf("decode checkpoint envelope: %w", err)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return nil, fmt.Errorf("create cose verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("checkpoint signature: %w", err)
	}
	var cp Checkpoint
	if err := cbor.Unmarshal(msg.Payload, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// KeyID is the SHA-256 of the PKIX encoding of pub.
func KeyID(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return sum[:], nil
}

// ParsePublicKeyPEM reads a PKIX P-256 public key.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("public key: no PEM block")
	}
	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	ec, ok := k.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key: not an ECDSA key")
	}
	return ec, nil
}
