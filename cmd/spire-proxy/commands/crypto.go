package commands

import (
	"encoding/binary"
	"fmt"

	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/threshold"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// thresholdMessage rebuilds the digest input a combined threshold
// signature was computed over, mirroring the layout
// cmd/spire-master/commands/crypto.go signs shares against.
func thresholdMessage(o ordinal.Ordinal, payload []byte) []byte {
	buf := make([]byte, 12+len(payload))
	binary.BigEndian.PutUint32(buf[0:], o.OrdNum)
	binary.BigEndian.PutUint32(buf[4:], o.EventIdx)
	binary.BigEndian.PutUint32(buf[8:], o.EventTot)
	copy(buf[12:], payload)
	return buf
}

// signEnvelopeFunc backs client.Dependencies.SignEnvelope: the outer
// RSA-PSS signature over an encoded UPDATE envelope, using this
// client's own private key.
func signEnvelopeFunc(ks *replicastate.KeySnapshot) func([]byte) ([]byte, error) {
	return func(encoded []byte) ([]byte, error) {
		priv, err := parseRSAPrivateKey(ks.Load().PrimeRSAPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("crypto: load rsa private key: %w", err)
		}
		return wire.Sign(priv, encoded)
	}
}

// verifyEnvelopeFunc backs client.Dependencies.VerifyEnvelope: the
// outer RSA-PSS signature on a TC_FINAL against the claimed sending
// replica's currently-installed public key.
func verifyEnvelopeFunc(ks *replicastate.KeySnapshot) func(uint32, []byte) error {
	return func(senderID uint32, encoded []byte) error {
		der, ok := ks.Load().PrimeRSAPublicKeys[senderID]
		if !ok {
			return fmt.Errorf("crypto: no rsa public key for sender %d", senderID)
		}
		pub, err := parseRSAPublicKey(der)
		if err != nil {
			return fmt.Errorf("crypto: parse rsa public key for sender %d: %w", senderID, err)
		}
		return wire.Verify(pub, encoded)
	}
}

// verifyThresholdFunc backs client.Dependencies.VerifyThreshold: the
// combined threshold signature over (ordinal, payload) against the
// currently installed SM threshold public key.
func verifyThresholdFunc(ks *replicastate.KeySnapshot) func(ordinal.Ordinal, []byte, [wire.SignatureSize]byte) error {
	return func(o ordinal.Ordinal, payload []byte, sig [wire.SignatureSize]byte) error {
		params, err := threshold.UnmarshalPublicKey(ks.Load().SMThresholdPublicKey)
		if err != nil {
			return fmt.Errorf("crypto: load threshold params: %w", err)
		}
		digest := thresholdMessage(o, payload)
		return threshold.VerifySignature(params, sig[:], digest)
	}
}
