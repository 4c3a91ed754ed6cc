package commands

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/spire-resilient-systems/itrc/internal/logger"
	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/stqueue"
	"github.com/spire-resilient-systems/itrc/pkg/tcqueue"
	"github.com/spire-resilient-systems/itrc/pkg/threshold"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// thresholdMessage builds the digest input a threshold partial
// signature is computed and verified over: the ordinal a TC_FINAL is
// addressed to, stamped onto the SCADA payload it carries.
func thresholdMessage(o ordinal.Ordinal, payload []byte) []byte {
	buf := make([]byte, 12+len(payload))
	binary.BigEndian.PutUint32(buf[0:], o.OrdNum)
	binary.BigEndian.PutUint32(buf[4:], o.EventIdx)
	binary.BigEndian.PutUint32(buf[8:], o.EventTot)
	copy(buf[12:], payload)
	return buf
}

// copyRightAligned places src into the rightmost bytes of dst, the
// big-endian-safe way to pack a variable-length modular-exponentiation
// result into a fixed-size wire field: zero-padding on the left leaves
// the represented integer unchanged, while padding on the right would
// multiply it by 256 per trailing byte.
func copyRightAligned(dst, src []byte) {
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	copy(dst[len(dst)-len(src):], src)
}

func loadThresholdParams(ks *replicastate.KeySnapshot) (threshold.Params, error) {
	return threshold.UnmarshalPublicKey(ks.Load().SMThresholdPublicKey)
}

func loadThresholdShare(ks *replicastate.KeySnapshot) (threshold.Params, threshold.Share, error) {
	return threshold.UnmarshalPrivateShare(ks.Load().SMThresholdPrivateShare)
}

// signEnvelopeFunc backs master.Dependencies.SignEnvelope and
// inject.Signer: the outer RSA-PSS signature over an encoded
// SignedMessage, using this replica's currently-installed private key.
func signEnvelopeFunc(ks *replicastate.KeySnapshot) func([]byte) ([]byte, error) {
	return func(encoded []byte) ([]byte, error) {
		priv, err := parseRSAPrivateKey(ks.Load().PrimeRSAPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("crypto: load rsa private key: %w", err)
		}
		return wire.Sign(priv, encoded)
	}
}

// verifyEnvelopeFunc backs master.Dependencies.VerifyEnvelope and
// inject.Verifier: the outer
// RSA-PSS signature against the claimed sender's currently-installed
// public key.
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

// signShareFunc backs master.Dependencies.SignShare: this replica's
// Shoup threshold partial signature over (ordinal, payload).
func signShareFunc(ks *replicastate.KeySnapshot) func(ordinal.Ordinal, []byte) [wire.SignatureSize]byte {
	return func(o ordinal.Ordinal, payload []byte) [wire.SignatureSize]byte {
		var out [wire.SignatureSize]byte
		params, share, err := loadThresholdShare(ks)
		if err != nil {
			logger.Error("sign tc share: load threshold share", "error", err)
			return out
		}
		digest := thresholdMessage(o, payload)
		sig := threshold.GenerateSigShare(params, share, digest)
		copyRightAligned(out[:], sig)
		return out
	}
}

// combineFunc backs master.Dependencies.Combine: it assembles a
// TC_FINAL once reqShares partial signatures have been collected for
// an ordinal, carrying the combined threshold signature. It adds no
// outer RSA signature; externalLink.Send wraps and signs the TC_FINAL
// envelope before it goes to the addressed client.
func combineFunc(ks *replicastate.KeySnapshot) tcqueue.Combiner {
	return func(o ordinal.Ordinal, shares map[uint32]*wire.TcShareMsg) (*wire.TcFinalMsg, error) {
		params, err := loadThresholdParams(ks)
		if err != nil {
			return nil, fmt.Errorf("combine: load threshold params: %w", err)
		}

		var payload []byte
		sigShares := make(map[int][]byte, len(shares))
		for id, s := range shares {
			sigShares[int(id)] = s.PartialSig[:]
			payload = s.Payload[:]
		}

		digest := thresholdMessage(o, payload)
		combined, err := threshold.CombineShares(params, sigShares, digest)
		if err != nil {
			return nil, fmt.Errorf("combine: combine shares at %s: %w", o, err)
		}

		final := &wire.TcFinalMsg{Ord: o}
		copy(final.Payload[:], payload)
		copyRightAligned(final.ThreshSig[:], combined)
		return final, nil
	}
}

// digestFunc backs master.Dependencies.Digest: the comparison digest
// used to validate f+1 matching state-transfer snapshots before one
// is trusted, computed over the fields that must agree across
// independently-generated copies (the target replica's identity is
// excluded, since that varies with who requested the transfer).
func digestFunc() stqueue.Digester {
	return func(st *wire.StateXferMsg) []byte {
		h := sha256.New()
		_ = binary.Write(h, binary.BigEndian, st.NumClients)
		for _, seq := range st.LatestUpdate {
			_ = binary.Write(h, binary.BigEndian, seq.Incarnation)
			_ = binary.Write(h, binary.BigEndian, seq.SeqNum)
		}
		h.Write(st.State)
		return h.Sum(nil)
	}
}

// verifyThresholdFunc has the shape of client.Dependencies.VerifyThreshold:
// the combined signature over (ordinal, payload) against the currently
// installed SM threshold public key. spire-master runs no Client, so
// nothing in this command calls it.
func verifyThresholdFunc(ks *replicastate.KeySnapshot) func(ordinal.Ordinal, []byte, [wire.SignatureSize]byte) error {
	return func(o ordinal.Ordinal, payload []byte, sig [wire.SignatureSize]byte) error {
		params, err := loadThresholdParams(ks)
		if err != nil {
			return fmt.Errorf("crypto: load threshold params: %w", err)
		}
		digest := thresholdMessage(o, payload)
		return threshold.VerifySignature(params, sig[:], digest)
	}
}
