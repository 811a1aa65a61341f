// Package password generates candidate database passwords under the same
// character-class rules Secrets Manager's GetRandomPassword accepts.
package password

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

const (
	Lowercase   = "abcdefghijklmnopqrstuvwxyz"
	Uppercase   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Numbers     = "0123456789"
	Punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

	// MaxLength mirrors the Secrets Manager GetRandomPassword limit.
	MaxLength = 4096

	// DefaultExcludeCharacters are unsafe inside a MySQL connection string or
	// a quoted shell argument.
	DefaultExcludeCharacters = "/@\"'\\"
	DefaultLength            = 32
)

// Options constrains candidate generation.
type Options struct {
	ExcludeCharacters       string `json:"exclude_characters,omitempty"`
	ExcludeLowercase        bool   `json:"exclude_lowercase,omitempty"`
	ExcludeNumbers          bool   `json:"exclude_numbers,omitempty"`
	ExcludePunctuation      bool   `json:"exclude_punctuation,omitempty"`
	ExcludeUppercase        bool   `json:"exclude_uppercase,omitempty"`
	Length                  int    `json:"length"`
	RequireEachIncludedType bool   `json:"require_each_included_type,omitempty"`
}

// DefaultOptions returns the options the rotation function was deployed with.
func DefaultOptions() Options {
	return Options{
		ExcludeCharacters:       DefaultExcludeCharacters,
		Length:                  DefaultLength,
		RequireEachIncludedType: true,
	}
}

type class struct {
	name  string
	chars string
}

// classes returns the included character classes with excluded characters
// removed. Classes emptied by ExcludeCharacters are returned empty.
func (o Options) classes() []class {
	var classes []class
	add := func(excluded bool, name, chars string) {
		if excluded {
			return
		}
		classes = append(classes, class{name: name, chars: strip(chars, o.ExcludeCharacters)})
	}
	add(o.ExcludeLowercase, "lowercase", Lowercase)
	add(o.ExcludeUppercase, "uppercase", Uppercase)
	add(o.ExcludeNumbers, "numbers", Numbers)
	add(o.ExcludePunctuation, "punctuation", Punctuation)
	return classes
}

// Validate fails fast when no password can satisfy o.
func (o Options) Validate() error {
	if o.Length < 1 || o.Length > MaxLength {
		return fmt.Errorf("%w: password length %d outside 1..%d", rerrors.ErrCredentialGeneration, o.Length, MaxLength)
	}

	classes := o.classes()
	if len(classes) == 0 {
		return fmt.Errorf("%w: every character type is excluded", rerrors.ErrCredentialGeneration)
	}

	var total int
	for _, c := range classes {
		if c.chars == "" && o.RequireEachIncludedType {
			return fmt.Errorf("%w: %s required but every %s character is excluded", rerrors.ErrCredentialGeneration, c.name, c.name)
		}
		total += len(c.chars)
	}
	if total == 0 {
		return fmt.Errorf("%w: excluded characters leave nothing to choose from", rerrors.ErrCredentialGeneration)
	}

	if o.RequireEachIncludedType && len(classes) > o.Length {
		return fmt.Errorf("%w: %d character types required but length is %d", rerrors.ErrCredentialGeneration, len(classes), o.Length)
	}

	return nil
}

// Alphabet returns every character a password may contain.
func (o Options) Alphabet() string {
	var sb strings.Builder
	for _, c := range o.classes() {
		sb.WriteString(c.chars)
	}
	return sb.String()
}

// Check verifies that pw could have been produced under o.
func (o Options) Check(pw string) error {
	if len(pw) != o.Length {
		return fmt.Errorf("%w: password length %d, want %d", rerrors.ErrCredentialGeneration, len(pw), o.Length)
	}

	alphabet := o.Alphabet()
	for _, r := range pw {
		if !strings.ContainsRune(alphabet, r) {
			return fmt.Errorf("%w: password contains a disallowed character", rerrors.ErrCredentialGeneration)
		}
	}

	if o.RequireEachIncludedType {
		for _, c := range o.classes() {
			if !strings.ContainsAny(pw, c.chars) {
				return fmt.Errorf("%w: password has no %s character", rerrors.ErrCredentialGeneration, c.name)
			}
		}
	}

	return nil
}

// Local generates passwords in-process from a cryptographic random source.
type Local struct {
	random io.Reader
}

// NewLocal returns a generator backed by crypto/rand.
func NewLocal() *Local {
	return &Local{random: rand.Reader}
}

// Generate returns a password satisfying opts.
func (l *Local) Generate(_ context.Context, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	classes := opts.classes()
	alphabet := opts.Alphabet()
	pw := make([]byte, 0, opts.Length)

	if opts.RequireEachIncludedType {
		for _, c := range classes {
			ch, err := l.pick(c.chars)
			if err != nil {
				return "", err
			}
			pw = append(pw, ch)
		}
	}

	for len(pw) < opts.Length {
		ch, err := l.pick(alphabet)
		if err != nil {
			return "", err
		}
		pw = append(pw, ch)
	}

	// Fisher-Yates so the required characters are not always up front.
	for i := len(pw) - 1; i > 0; i-- {
		j, err := l.intn(i + 1)
		if err != nil {
			return "", err
		}
		pw[i], pw[j] = pw[j], pw[i]
	}

	return string(pw), nil
}

func (l *Local) pick(chars string) (byte, error) {
	i, err := l.intn(len(chars))
	if err != nil {
		return 0, err
	}
	return chars[i], nil
}

func (l *Local) intn(n int) (int, error) {
	v, err := rand.Int(l.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read random bytes: %v", rerrors.ErrCredentialGeneration, err)
	}
	return int(v.Int64()), nil
}

func strip(chars, exclude string) string {
	if exclude == "" {
		return chars
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(exclude, r) {
			return -1
		}
		return r
	}, chars)
}
