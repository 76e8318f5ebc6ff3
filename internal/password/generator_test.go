package password

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate_CharacterClasses(t *testing.T) {
	for _, length := range []int{MinLength, 12, 16, 64} {
		for i := 0; i < 200; i++ {
			pw, err := Generate(length)
			if err != nil {
				t.Fatalf("Generate(%d) error = %v", length, err)
			}
			if len(pw) != length {
				t.Fatalf("len(Generate(%d)) = %d", length, len(pw))
			}
			if !strings.ContainsAny(pw, Lowercase) {
				t.Errorf("%q has no lowercase letter", pw)
			}
			if !strings.ContainsAny(pw, Uppercase) {
				t.Errorf("%q has no uppercase letter", pw)
			}
			if !strings.ContainsAny(pw, Digits) {
				t.Errorf("%q has no digit", pw)
			}
			if !strings.ContainsAny(pw, Symbols) {
				t.Errorf("%q has no symbol", pw)
			}
			for _, r := range pw {
				if !strings.ContainsRune(Alphabet, r) {
					t.Errorf("%q contains %q outside the alphabet", pw, r)
				}
			}
		}
	}
}

func TestGenerate_TooShort(t *testing.T) {
	if _, err := Generate(MinLength - 1); err == nil {
		t.Error("Generate() error = nil, want error for short length")
	}
}

func TestGenerate_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		pw, err := Generate(16)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		seen[pw] = true
	}
	if len(seen) < 50 {
		t.Errorf("got %d distinct passwords out of 50", len(seen))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerator_RandomSourceFailure(t *testing.T) {
	g := &Generator{random: failingReader{}}
	if _, err := g.Generate(16); err == nil {
		t.Error("Generate() error = nil, want random source error")
	}
}
