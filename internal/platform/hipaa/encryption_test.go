package hipaa

import (
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewSealer(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		if _, err := NewSealer(generateTestKey(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("key too short", func(t *testing.T) {
		if _, err := NewSealer(make([]byte, 16)); err == nil {
			t.Fatal("expected error for 16-byte key")
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if _, err := NewSealer(nil); err == nil {
			t.Fatal("expected error for empty key")
		}
	})
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(generateTestKey(t))
	if err != nil {
		t.Fatalf("create sealer: %v", err)
	}
	cases := []string{"", `{"patientName":"Jane Doe"}`, strings.Repeat("x", 4096)}
	for _, plain := range cases {
		sealed, err := s.Seal([]byte(plain))
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if !IsSealed(sealed) {
			t.Errorf("sealed value lacks prefix: %q", sealed[:10])
		}
		if plain != "" && strings.Contains(sealed, plain) {
			t.Error("plaintext visible in sealed value")
		}
		got, err := s.Open(sealed)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if string(got) != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestSeal_NonceIsRandom(t *testing.T) {
	s, _ := NewSealer(generateTestKey(t))
	a, _ := s.Seal([]byte("same"))
	b, _ := s.Seal([]byte("same"))
	if a == b {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	a, _ := NewSealer(generateTestKey(t))
	b, _ := NewSealer(generateTestKey(t))
	sealed, _ := a.Seal([]byte("secret"))
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected error opening with the wrong key")
	}
}

func TestOpen_Tampered(t *testing.T) {
	s, _ := NewSealer(generateTestKey(t))
	if _, err := s.Open("enc:v1:!!!"); err == nil {
		t.Error("expected base64 error")
	}
	if _, err := s.Open("enc:v1:AAAA"); err == nil {
		t.Error("expected short ciphertext error")
	}
	if _, err := s.Open("plain"); err == nil {
		t.Error("expected error for unsealed value")
	}
}

func TestOptional(t *testing.T) {
	plain, err := SealOptional(nil, []byte("open text"))
	if err != nil || plain != "open text" {
		t.Fatalf("SealOptional(nil) = %q, %v", plain, err)
	}
	got, err := OpenOptional(nil, plain)
	if err != nil || string(got) != "open text" {
		t.Fatalf("OpenOptional(nil, plain) = %q, %v", got, err)
	}

	s, _ := NewSealer(generateTestKey(t))
	sealed, _ := SealOptional(s, []byte("hidden"))
	if _, err := OpenOptional(nil, sealed); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}
	got, err = OpenOptional(s, sealed)
	if err != nil || string(got) != "hidden" {
		t.Errorf("OpenOptional(s, sealed) = %q, %v", got, err)
	}
}

func TestInitials(t *testing.T) {
	cases := map[string]string{
		"Jane Doe":        "J.D.",
		"  mary   o'neil": "M.O.",
		"":                "",
		"Ñandú 3rd":       "Ñ.R.",
	}
	for in, want := range cases {
		if got := Initials(in); got != want {
			t.Errorf("Initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPatientLogField(t *testing.T) {
	var buf strings.Builder
	log := zerolog.New(&buf)
	Patient(log.Info(), "Jane Doe").Msg("stored")
	if !strings.Contains(buf.String(), `"patient":"J.D."`) || strings.Contains(buf.String(), "Jane") {
		t.Errorf("log line = %s", buf.String())
	}
}
