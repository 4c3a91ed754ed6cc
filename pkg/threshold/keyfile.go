package threshold

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// PublicKeyFile is the on-disk form of a signature group's public
// parameters: everything VerifySignature and CombineShares need but
// no replica's private share. Mirrors the pub_key_header part of a
// CONFIG_KEYS_MSG key fragment, minus the private payload.
type PublicKeyFile struct {
	N         *big.Int `json:"n"`
	E         int64    `json:"e"`
	Threshold int      `json:"threshold"`
	NumShares int      `json:"num_shares"`
}

// PrivateShareFile is the on-disk form of one replica's private share,
// the pvt_key_header counterpart distributed per-replica and
// RSA-OAEP-encrypted in transit (decryption happens before this type
// is ever populated; at rest on a replica's disk it is the same
// plaintext share GenerateShares produced).
type PrivateShareFile struct {
	PublicKeyFile
	ServerID int      `json:"server_id"`
	Value    *big.Int `json:"value"`
}

// Params extracts this key's group parameters.
func (f PublicKeyFile) Params() Params {
	return Params{N: f.N, E: f.E, Threshold: f.Threshold, NumShares: f.NumShares}
}

// Share extracts this replica's private share.
func (f PrivateShareFile) Share() Share {
	return Share{ServerID: f.ServerID, Value: f.Value}
}

// MarshalPublicKey encodes a group's public parameters as JSON, the
// format written to SMThresholdPublicKey/PrimeRSAPublicKeys key files.
func MarshalPublicKey(params Params) ([]byte, error) {
	out, err := json.Marshal(PublicKeyFile{N: params.N, E: params.E, Threshold: params.Threshold, NumShares: params.NumShares})
	if err != nil {
		return nil, fmt.Errorf("threshold: marshal public key: %w", err)
	}
	return out, nil
}

// UnmarshalPublicKey decodes a public-key file previously produced by
// MarshalPublicKey.
func UnmarshalPublicKey(data []byte) (Params, error) {
	var f PublicKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Params{}, fmt.Errorf("threshold: unmarshal public key: %w", err)
	}
	return f.Params(), nil
}

// MarshalPrivateShare encodes one replica's params and private share
// as JSON, the format written to SMThresholdPrivateShare key files.
func MarshalPrivateShare(params Params, share Share) ([]byte, error) {
	out, err := json.Marshal(PrivateShareFile{
		PublicKeyFile: PublicKeyFile{N: params.N, E: params.E, Threshold: params.Threshold, NumShares: params.NumShares},
		ServerID:      share.ServerID,
		Value:         share.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("threshold: marshal private share: %w", err)
	}
	return out, nil
}

// UnmarshalPrivateShare decodes a private-share file previously
// produced by MarshalPrivateShare.
func UnmarshalPrivateShare(data []byte) (Params, Share, error) {
	var f PrivateShareFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Params{}, Share{}, fmt.Errorf("threshold: unmarshal private share: %w", err)
	}
	return f.Params(), f.Share(), nil
}
