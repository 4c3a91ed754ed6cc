package commands

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spire-resilient-systems/itrc/internal/config"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// loadKeyMaterial reads this replica's RSA and threshold key material
// from the paths cfg.Keys names. No PEM/PKCS1 handling library appears
// anywhere in the retrieved example pack, so this wraps crypto/x509
// and encoding/pem directly, the same standard-library reliance
// wire.Sign and wire.Verify already carry.
func loadKeyMaterial(keysCfg config.KeyConfig, newCfg *wire.ConfigMessage) (*replicastate.KeyMaterial, error) {
	pub, err := loadRSAPublicKeys(keysCfg.RSAPublicDir)
	if err != nil {
		return nil, fmt.Errorf("load rsa public keys: %w", err)
	}
	priv, err := os.ReadFile(keysCfg.RSAPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read rsa private key: %w", err)
	}
	thresholdPub, err := os.ReadFile(keysCfg.ThresholdPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read threshold public key: %w", err)
	}
	thresholdShare, err := os.ReadFile(keysCfg.ThresholdPrivateSharePath)
	if err != nil {
		return nil, fmt.Errorf("read threshold private share: %w", err)
	}

	return &replicastate.KeyMaterial{
		GlobalConfigurationNumber: newCfg.GlobalConfigurationNumber,
		PrimeRSAPublicKeys:        pub,
		PrimeRSAPrivateKey:        priv,
		SMThresholdPublicKey:      thresholdPub,
		SMThresholdPrivateShare:   thresholdShare,
	}, nil
}

// loadRSAPublicKeys reads every "<machine_id>.pem" file in dir into a
// machine-id-keyed map of PKCS1-DER-encoded public keys. The directory
// holds one entry per possible sender this replica must verify:
// fellow replicas and any client (RTU, HMI, or benchmark endpoint)
// configured into the cluster.
func loadRSAPublicKeys(dir string) (map[uint32][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	out := make(map[uint32][]byte)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pem") {
			continue
		}
		idStr := strings.TrimSuffix(entry.Name(), ".pem")
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%s: not a PEM file", entry.Name())
		}
		out[uint32(id)] = block.Bytes
	}
	return out, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(der)
	if block == nil {
		return nil, fmt.Errorf("not a PEM-encoded private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs1 private key: %w", err)
	}
	return key, nil
}

func parseRSAPublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs1 public key: %w", err)
	}
	return key, nil
}
