package wire

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Sign computes an RSA-PSS signature over the signed region of an
// already-Encode'd envelope (everything from offset(SignatureSize) to
// end-of-message) and writes it into the leading Sig field, returning
// the fully-signed buffer.
//
// No third-party RSA or threshold-signature library appears anywhere
// in the retrieved example pack; this wraps the standard library's
// crypto/rsa, as documented in the project's dependency ledger.
func Sign(priv *rsa.PrivateKey, encoded []byte) ([]byte, error) {
	if len(encoded) < SignatureSize {
		return nil, fmt.Errorf("wire: encoded message shorter than signature field")
	}
	digest := sha256.Sum256(SignedRegion(encoded))
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		return nil, fmt.Errorf("wire: sign: %w", err)
	}
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("wire: unexpected signature length %d, want %d", len(sig), SignatureSize)
	}
	out := make([]byte, len(encoded))
	copy(out, encoded)
	copy(out[offSig:offSig+SignatureSize], sig)
	return out, nil
}

// Verify checks the leading Sig field of an encoded envelope against
// the signed region, using pub.
func Verify(pub *rsa.PublicKey, encoded []byte) error {
	if len(encoded) < SignatureSize {
		return fmt.Errorf("wire: encoded message shorter than signature field")
	}
	digest := sha256.Sum256(SignedRegion(encoded))
	sig := encoded[offSig : offSig+SignatureSize]
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil); err != nil {
		return fmt.Errorf("wire: verify: %w", err)
	}
	return nil
}
