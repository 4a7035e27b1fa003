package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "sunset", "sunset"},
		{"mixed case and spaces", "Cat With Blue Eyes", "cat_with_blue_eyes"},
		{"punctuation stripped", "Dog's ball!?", "dogs_ball"},
		{"hyphen and underscore kept", "red-fox_den", "red-fox_den"},
		{"whitespace collapsed", "  two   words\tand\nmore ", "two_words_and_more"},
		{"camel case", "MountainLake", "mountainlake"},
		{"unicode letters kept", "Café Crème", "café_crème"},
		{"only punctuation", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeNameIdempotent(t *testing.T) {
	inputs := []string{
		"Cat With Blue Eyes",
		"Hello, World!",
		"a  b\tc",
		"MiXeD-Case_name 42",
		"émoji 🐱 cat",
		"--already_safe--",
	}
	for _, in := range inputs {
		once := SanitizeName(in)
		twice := SanitizeName(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.ContainsAny(once, " \t\n") || once != strings.ToLower(once) {
			t.Errorf("SanitizeName(%q) = %q is not filename-safe", in, once)
		}
	}
}

func TestDerivedNamesDeterministic(t *testing.T) {
	d := &Description{Description: "A cat", Name: "Fluffy Cat!"}
	if d.SafeFilename() != "fluffy_cat_rn.jpg" {
		t.Errorf("SafeFilename() = %q", d.SafeFilename())
	}
	if d.EmbeddingID() != "emb-fluffy_cat" {
		t.Errorf("EmbeddingID() = %q", d.EmbeddingID())
	}
	for i := 0; i < 3; i++ {
		if d.SafeFilename() != FilenameFromName(d.Name) || d.EmbeddingID() != EmbeddingIDFromName(d.Name) {
			t.Fatal("derived names changed between calls")
		}
	}
}

func TestEmbeddingIDRoundTrip(t *testing.T) {
	dir := filepath.Join("data", "renamed")
	names := []string{"Sunset over Mountains", "cat-with-hat", "A  b  C", "x"}
	for _, n := range names {
		path, ok := ImagePathFromEmbeddingID(dir, EmbeddingIDFromName(n))
		if !ok {
			t.Fatalf("ImagePathFromEmbeddingID rejected id for %q", n)
		}
		want := filepath.Join(dir, FilenameFromName(n))
		if path != want {
			t.Errorf("round trip for %q: got %q, want %q", n, path, want)
		}
	}
}

func TestImagePathFromEmbeddingID_Rejects(t *testing.T) {
	for _, id := range []string{
		"", "emb-", "cat", "xemb-cat",
		"emb-../../etc/x", "emb-../cat", "emb-/abs/cat", "emb-a/b",
		"emb-Cat", "emb-two words",
	} {
		if _, ok := ImagePathFromEmbeddingID("dir", id); ok {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}

func TestParseDescription(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  error
		wantName string
	}{
		{
			name:     "valid",
			raw:      `{"description": "A cat sleeping on a sofa", "name": "sleepy cat"}`,
			wantName: "sleepy cat",
		},
		{
			name:     "surrounding whitespace",
			raw:      "\n  {\"description\": \"Beach\", \"name\": \"beach\"}  \n",
			wantName: "beach",
		},
		{
			name:     "trailing comma repaired",
			raw:      `{"description": "A red car", "name": "red car",}`,
			wantName: "red car",
		},
		{
			name:    "empty",
			raw:     "   ",
			wantErr: ErrMalformedDescription,
		},
		{
			name:    "wrong shape",
			raw:     `["description", "name"]`,
			wantErr: ErrMalformedDescription,
		},
		{
			name:    "missing name",
			raw:     `{"description": "A dog"}`,
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "empty description",
			raw:     `{"description": "  ", "name": "dog"}`,
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "name too long",
			raw:     `{"description": "A dog", "name": "` + strings.Repeat("a", MaxNameLength+1) + `"}`,
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "name without safe characters",
			raw:     `{"description": "A dog", "name": "?!"}`,
			wantErr: ErrInvalidDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDescription(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseDescription() error = %v, want %v", err, tt.wantErr)
				}
				if d != nil {
					t.Errorf("expected nil description on error, got %+v", d)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDescription() unexpected error: %v", err)
			}
			if d.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", d.Name, tt.wantName)
			}
		})
	}
}

func TestParseDescription_NameAtLimit(t *testing.T) {
	raw := `{"description": "ok", "name": "` + strings.Repeat("é", MaxNameLength) + `"}`
	if _, err := ParseDescription(raw); err != nil {
		t.Fatalf("50-character name should be accepted: %v", err)
	}
}
