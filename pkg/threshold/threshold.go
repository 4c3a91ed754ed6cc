// Package threshold implements (t,n) threshold RSA signing: partial
// signature shares generated independently by each replica, combined
// by any replica that collects a threshold of them into a single
// final signature verifiable under one group public key. The share
// lifecycle mirrors TC_Generate_Sig_Share, TC_Combine_Shares,
// TC_Check_Share, and TC_Verify_Signature from
// original_source/common/tc_wrapper.h; the actual combination math
// follows the standard Shoup RSA threshold-signature construction,
// since no threshold-cryptography library appears anywhere in the
// retrieved example pack.
package threshold

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// Params describes one signature group: the RSA modulus and public
// exponent shared by all replicas, and the (threshold, numShares)
// pair such that any Threshold of NumShares partial signatures
// combine into a valid group signature.
type Params struct {
	N         *big.Int
	E         int64
	Threshold int
	NumShares int
}

// Share is one replica's private exponent share: the evaluation at
// ServerID of a degree-(Threshold-1) polynomial whose constant term
// is the group's RSA private exponent.
type Share struct {
	ServerID int
	Value    *big.Int
}

// GenerateShares splits the group private exponent d into NumShares
// Shamir shares over Z_phi, any Threshold of which recover d, so up
// to NumShares-Threshold shares may be missing. phi is the order of the RSA group (known only at key
// generation time, never retained afterward).
func GenerateShares(params Params, d, phi *big.Int) ([]Share, error) {
	if params.Threshold < 1 || params.Threshold > params.NumShares {
		return nil, fmt.Errorf("threshold: invalid threshold %d of %d shares", params.Threshold, params.NumShares)
	}
	coeffs := make([]*big.Int, params.Threshold)
	coeffs[0] = new(big.Int).Mod(d, phi)
	for i := 1; i < params.Threshold; i++ {
		c, err := rand.Int(rand.Reader, phi)
		if err != nil {
			return nil, fmt.Errorf("threshold: generate coefficient: %w", err)
		}
		coeffs[i] = c
	}
	shares := make([]Share, params.NumShares)
	for id := 1; id <= params.NumShares; id++ {
		shares[id-1] = Share{ServerID: id, Value: evalPoly(coeffs, int64(id), phi)}
	}
	return shares, nil
}

func evalPoly(coeffs []*big.Int, x int64, mod *big.Int) *big.Int {
	result := new(big.Int)
	xb := big.NewInt(x)
	pow := big.NewInt(1)
	for _, c := range coeffs {
		term := new(big.Int).Mul(c, pow)
		result.Add(result, term)
		pow.Mul(pow, xb)
		pow.Mod(pow, mod)
	}
	return result.Mod(result, mod)
}

// hashToInt maps a message digest into Z_n via the standard
// hash-then-reduce construction used for full-domain RSA hashing.
func hashToInt(digest []byte, n *big.Int) *big.Int {
	h := sha256.Sum256(digest)
	i := new(big.Int).SetBytes(h[:])
	return i.Mod(i, n)
}

// GenerateSigShare computes one replica's partial signature over
// digest: h(digest)^(2*share) mod n. The factor of 2 matches the
// combination step's delta-squared cancellation below.
func GenerateSigShare(params Params, share Share, digest []byte) []byte {
	h := hashToInt(digest, params.N)
	exp := new(big.Int).Lsh(share.Value, 1)
	x := new(big.Int).Exp(h, exp, params.N)
	return x.Bytes()
}

// factorial returns n! as a *big.Int, used as the Lagrange scaling
// constant delta that keeps interpolation coefficients integral.
func factorial(n int) *big.Int {
	result := big.NewInt(1)
	for i := 2; i <= n; i++ {
		result.Mul(result, big.NewInt(int64(i)))
	}
	return result
}

// lagrangeCoefficient computes delta * lambda_{0,i}^S, the integer
// Lagrange coefficient (scaled by delta = NumShares!) for
// interpolating the polynomial's value at 0 from the share set ids.
func lagrangeCoefficient(i int, ids []int, delta *big.Int) *big.Int {
	num := new(big.Int).Set(delta)
	den := big.NewInt(1)
	for _, j := range ids {
		if j == i {
			continue
		}
		num.Mul(num, big.NewInt(int64(-j)))
		den.Mul(den, big.NewInt(int64(i-j)))
	}
	num.Div(num, den)
	return num
}

// CombineShares combines a threshold of partial signatures (indexed
// by ServerID) over digest into the group's final RSA signature.
func CombineShares(params Params, shares map[int][]byte, digest []byte) ([]byte, error) {
	if len(shares) < params.Threshold {
		return nil, fmt.Errorf("threshold: need %d shares, have %d", params.Threshold, len(shares))
	}
	ids := make([]int, 0, params.Threshold)
	for id := range shares {
		ids = append(ids, id)
		if len(ids) == params.Threshold {
			break
		}
	}

	delta := factorial(params.NumShares)
	h := hashToInt(digest, params.N)

	w := big.NewInt(1)
	for _, i := range ids {
		lambda := lagrangeCoefficient(i, ids, delta)
		x := new(big.Int).SetBytes(shares[i])

		exp := new(big.Int).Mul(lambda, big.NewInt(2))
		neg := exp.Sign() < 0
		if neg {
			exp.Neg(exp)
		}
		term := new(big.Int).Exp(x, exp, params.N)
		if neg {
			inv := new(big.Int).ModInverse(term, params.N)
			if inv == nil {
				return nil, fmt.Errorf("threshold: share for server %d not invertible mod n", i)
			}
			term = inv
		}
		w.Mul(w, term)
		w.Mod(w, params.N)
	}
	// w = h^(4*delta*d) mod n. Recover h^d via extended Euclid over
	// (e, 4*delta), which must be coprime for the group's chosen e.
	fourDelta := new(big.Int).Mul(big.NewInt(4), delta)
	e := big.NewInt(params.E)

	gcd, a, b := extendedGCD(e, fourDelta)
	if gcd.Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("threshold: e=%d not coprime with 4*delta", params.E)
	}

	wPow := modPow(w, b, params.N)
	hPow := modPow(h, a, params.N)
	sig := new(big.Int).Mul(wPow, hPow)
	sig.Mod(sig, params.N)
	return sig.Bytes(), nil
}

// modPow computes base^exp mod n, handling a negative exp via
// modular inverse.
func modPow(base, exp, n *big.Int) *big.Int {
	if exp.Sign() >= 0 {
		return new(big.Int).Exp(base, exp, n)
	}
	posExp := new(big.Int).Neg(exp)
	inv := new(big.Int).ModInverse(base, n)
	if inv == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Exp(inv, posExp, n)
}

// extendedGCD returns (g, x, y) such that a*x + b*y = g = gcd(a,b).
func extendedGCD(a, b *big.Int) (*big.Int, *big.Int, *big.Int) {
	x := new(big.Int)
	y := new(big.Int)
	g := new(big.Int).GCD(x, y, a, b)
	return g, x, y
}

// VerifySignature checks a combined signature against digest under
// the group's RSA public key (N, E).
func VerifySignature(params Params, sig, digest []byte) error {
	h := hashToInt(digest, params.N)
	s := new(big.Int).SetBytes(sig)
	check := new(big.Int).Exp(s, big.NewInt(params.E), params.N)
	if check.Cmp(h) != 0 {
		return fmt.Errorf("threshold: signature verification failed")
	}
	return nil
}
