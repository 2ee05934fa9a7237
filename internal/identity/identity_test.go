package identity

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalize_PassesThroughUUIDs(t *testing.T) {
	raw := "a3bb189e-8bf9-3888-9912-ace4e6543002"
	got := Normalize(raw)
	if got.String() != raw {
		t.Fatalf("Normalize(%q) = %q, want pass-through", raw, got)
	}
}

func TestNormalize_DerivesV5FromArbitraryStrings(t *testing.T) {
	got := Normalize("alice")
	want := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("alice"))
	if got != want {
		t.Fatalf("Normalize(alice) = %q, want %q", got, want)
	}
	if got.Version() != 5 {
		t.Fatalf("version = %d, want 5", got.Version())
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	a := Normalize("telegram:42")
	b := Normalize("telegram:42")
	if a != b {
		t.Fatalf("Normalize not deterministic: %q vs %q", a, b)
	}
	if a == Normalize("telegram:43") {
		t.Fatal("distinct tokens collided")
	}
}

func TestNormalize_IdempotentOnOwnOutput(t *testing.T) {
	first := Normalize("bob")
	second := Normalize(first.String())
	if first != second {
		t.Fatalf("Normalize(Normalize(bob)) = %q, want %q", second, first)
	}
}

func TestNormalize_TrimsWhitespace(t *testing.T) {
	if Normalize("  carol  ") != Normalize("carol") {
		t.Fatal("whitespace should not change identity")
	}
}
