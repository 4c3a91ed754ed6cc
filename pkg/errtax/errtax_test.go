package errtax

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{KindTransientNetwork, "TransientNetwork"},
		{KindAuthentication, "Authentication"},
		{KindProtocol, "Protocol"},
		{KindOrdering, "Ordering"},
		{KindConfiguration, "Configuration"},
		{KindFatal, "Fatal"},
		{Kind(99), "Unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}

func TestFactoriesTagTheRightKind(t *testing.T) {
	cause := fmt.Errorf("boom")
	tests := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"transient", Transient("overlay.send", cause), KindTransientNetwork},
		{"authentication", Authentication("wire.verify", cause), KindAuthentication},
		{"protocol", Protocol("wire.decode", cause), KindProtocol},
		{"ordering", Ordering("master.on_prime_ordered", cause), KindOrdering},
		{"configuration", Configuration("master.on_config_agent_message", cause), KindConfiguration},
		{"fatal", Fatal("startup.load_keys", cause), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.want)
			}
			if !errors.Is(tt.err, cause) {
				t.Errorf("expected Unwrap chain to reach %v", cause)
			}
		})
	}
}

func TestIsHelpersMatchOnlyTheirOwnKind(t *testing.T) {
	err := Authentication("client.receive", fmt.Errorf("bad signature"))

	if !IsAuthentication(err) {
		t.Error("IsAuthentication should match an Authentication error")
	}
	if IsTransient(err) || IsProtocol(err) || IsOrdering(err) || IsConfiguration(err) || IsFatal(err) {
		t.Error("an Authentication error must not match any other Is helper")
	}
}

func TestIsFalseForPlainErrors(t *testing.T) {
	plain := fmt.Errorf("not tagged")
	if IsTransient(plain) || IsFatal(plain) {
		t.Error("a plain error must not match any Is helper")
	}
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := Configuration("master.on_config_agent_message", fmt.Errorf("global_configuration_number 4 <= 4"))
	got := err.Error()
	want := "master.on_config_agent_message: Configuration: global_configuration_number 4 <= 4"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
