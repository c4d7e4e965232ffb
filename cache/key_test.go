package cache

import "testing"

func TestKey_Equality(t *testing.T) {
	a := Key{Kind: KindRewards, Scope: 1, ID: 2, Limit: Some(50)}
	b := Key{Kind: KindRewards, Scope: 1, ID: 2, Limit: Some(50)}
	if a != b {
		t.Fatal("identical keys must compare equal")
	}
	if a == (Key{Kind: KindRewards, Scope: 1, ID: 2, Limit: None()}) {
		t.Fatal("Some(50) must differ from None()")
	}
	if NewKey(KindUser, 1, 2) != (Key{Kind: KindUser, Scope: 1, ID: 2, Limit: None()}) {
		t.Fatal("NewKey must leave Limit absent")
	}
}

func TestKey_String(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{NewKey(KindUser, 10, 20), "user:10:20:none"},
		{Key{Kind: KindRewards, Scope: 1, ID: 1, Limit: Some(50)}, "rewards:1:1:50"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Fatalf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestKey_HashCoversLimitPresence(t *testing.T) {
	withZero := Key{Kind: KindLeaderboard, Scope: 1, ID: 1, Limit: Some(0)}
	absent := Key{Kind: KindLeaderboard, Scope: 1, ID: 1, Limit: None()}
	if withZero.hash() == absent.hash() {
		t.Fatal("Some(0) and None() must hash differently")
	}
	if absent.hash() != absent.hash() {
		t.Fatal("hash must be stable")
	}
}
