package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonrepair"
)

const (
	// EmbeddingIDPrefix prefixes the sanitized name to form a vector store key.
	EmbeddingIDPrefix = "emb-"

	// RenamedSuffix marks a file as renamed by the indexer.
	RenamedSuffix = "_rn.jpg"

	// MaxNameLength bounds the model-provided name, in characters.
	MaxNameLength = 50
)

var (
	// ErrMalformedDescription means the model output was not a JSON object.
	ErrMalformedDescription = errors.New("malformed description JSON")

	// ErrInvalidDescription means the JSON decoded but broke the field rules.
	ErrInvalidDescription = errors.New("invalid description")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Description is the structured caption returned by the vision model for one image.
type Description struct {
	Description string `json:"description" validate:"required" jsonschema:"A short description of the image"`
	Name        string `json:"name" validate:"required,max=50" jsonschema:"A few words for filename (no spaces)"`
}

// SafeName lowercases Name, drops every character that is not a letter,
// digit, underscore, hyphen or whitespace, and joins whitespace runs with "_".
func (d *Description) SafeName() string {
	return SanitizeName(d.Name)
}

// SafeFilename is the final file name of the renamed image.
func (d *Description) SafeFilename() string {
	return FilenameFromName(d.Name)
}

// EmbeddingID is the vector store key for the caption.
func (d *Description) EmbeddingID() string {
	return EmbeddingIDFromName(d.Name)
}

// SanitizeName is idempotent: SanitizeName(SanitizeName(s)) == SanitizeName(s).
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), "_"))
}

// FilenameFromName returns the renamed-file name for a model-provided name.
func FilenameFromName(name string) string {
	return SanitizeName(name) + RenamedSuffix
}

// EmbeddingIDFromName returns the vector store key for a model-provided name.
func EmbeddingIDFromName(name string) string {
	return EmbeddingIDPrefix + SanitizeName(name)
}

// ImagePathFromEmbeddingID inverts EmbeddingIDFromName into the expected
// path of the renamed image under dir. ok is false for ids without the
// prefix and for ids that SanitizeName could not have produced, so the
// path never leaves dir.
func ImagePathFromEmbeddingID(dir, embeddingID string) (path string, ok bool) {
	safe, found := strings.CutPrefix(embeddingID, EmbeddingIDPrefix)
	if !found || safe == "" || SanitizeName(safe) != safe {
		return "", false
	}
	return filepath.Join(dir, safe+RenamedSuffix), true
}

// ParseDescription decodes and validates raw model output. Syntax errors are
// retried once through jsonrepair, since local models often emit trailing
// commas or unquoted keys.
func ParseDescription(raw string) (*Description, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedDescription)
	}

	var d Description
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
		}
		fixed, repairErr := jsonrepair.JSONRepair(trimmed)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
		}
		d = Description{}
		if err := json.Unmarshal([]byte(fixed), &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate enforces the field rules: non-empty description, a name of 1..50
// characters whose sanitized form is not empty.
func (d *Description) Validate() error {
	d.Description = strings.TrimSpace(d.Description)
	d.Name = strings.TrimSpace(d.Name)

	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if SanitizeName(d.Name) == "" {
		return fmt.Errorf("%w: name %q has no filename-safe characters", ErrInvalidDescription, d.Name)
	}
	return nil
}
