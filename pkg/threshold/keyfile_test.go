package threshold

import (
	"math/big"
	"testing"
)

func TestPublicKeyRoundTrip(t *testing.T) {
	params := Params{N: big.NewInt(9409), E: 3, Threshold: 2, NumShares: 4}
	data, err := MarshalPublicKey(params)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPublicKey(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.N.Cmp(params.N) != 0 || got.E != params.E || got.Threshold != params.Threshold || got.NumShares != params.NumShares {
		t.Errorf("got %+v, want %+v", got, params)
	}
}

func TestPrivateShareRoundTrip(t *testing.T) {
	params := Params{N: big.NewInt(9409), E: 3, Threshold: 2, NumShares: 4}
	share := Share{ServerID: 2, Value: big.NewInt(1234)}

	data, err := MarshalPrivateShare(params, share)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	gotParams, gotShare, err := UnmarshalPrivateShare(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if gotParams.N.Cmp(params.N) != 0 {
		t.Errorf("params.N = %v, want %v", gotParams.N, params.N)
	}
	if gotShare.ServerID != share.ServerID || gotShare.Value.Cmp(share.Value) != 0 {
		t.Errorf("share = %+v, want %+v", gotShare, share)
	}
}
