package cache

import (
	"strings"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "unauthenticated",
			key:  Key{URL: "https://api.example.com/v1/flags"},
			want: "fetch:32:https://api.example.com/v1/flags",
		},
		{
			name: "query string kept verbatim",
			key:  Key{URL: "https://api.example.com/v1/items?page=2"},
			want: "fetch:39:https://api.example.com/v1/items?page=2",
		},
		{
			name: "authenticated",
			key:  Key{URL: "https://api.example.com/v1/me", Authorization: "Bearer abc"},
			want: "fetch:29:https://api.example.com/v1/me:auth=" + fingerprint("Bearer abc"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_AuthContextsNeverAlias(t *testing.T) {
	url := "https://api.example.com/v1/me"

	anon := Key{URL: url}.String()
	alice := Key{URL: url, Authorization: "Bearer alice"}.String()
	bob := Key{URL: url, Authorization: "Bearer bob"}.String()

	if anon == alice || anon == bob || alice == bob {
		t.Errorf("keys alias: anon=%q alice=%q bob=%q", anon, alice, bob)
	}
}

func TestKey_URLCannotImitateAuthSuffix(t *testing.T) {
	url := "https://api.example.com/v1/me"
	authed := Key{URL: url, Authorization: "Bearer alice"}
	forged := Key{URL: url + ":auth=" + fingerprint("Bearer alice")}

	if authed.String() == forged.String() {
		t.Errorf("unauthenticated key %q collides with authenticated key", forged.String())
	}
}

func TestKey_DoesNotLeakToken(t *testing.T) {
	key := Key{URL: "https://api.example.com", Authorization: "Bearer s3cr3t"}.String()
	if strings.Contains(key, "s3cr3t") {
		t.Errorf("key %q contains raw token", key)
	}
}

// TestKey_Determinism ensures same input always produces same key
func TestKey_Determinism(t *testing.T) {
	key := Key{URL: "https://api.example.com/v1/me", Authorization: "Bearer abc"}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Errorf("result[%d] = %v, want %v (not deterministic)", i, got, first)
		}
	}
}
