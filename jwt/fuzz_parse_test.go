package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzJWTParseAccess exercises the parser with arbitrary token strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzJWTParseAccess(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}

	pair, err := mgr.MintPair("uid1", "sid1", 7)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(pair.AccessToken)
	f.Add(pair.RefreshToken)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJ1aWQiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.ParseAccess(input)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("ParseAccess returned nil claims without error")
		}
		if claims.Type != TypeAccess {
			t.Fatalf("ParseAccess accepted token of type %q", claims.Type)
		}
	})
}
