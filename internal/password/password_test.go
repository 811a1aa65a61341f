package password

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "defaults",
			opts: DefaultOptions(),
		},
		{
			name:    "zero length",
			opts:    Options{Length: 0},
			wantErr: true,
		},
		{
			name:    "too long",
			opts:    Options{Length: MaxLength + 1},
			wantErr: true,
		},
		{
			name: "everything excluded",
			opts: Options{
				Length:             16,
				ExcludeLowercase:   true,
				ExcludeUppercase:   true,
				ExcludeNumbers:     true,
				ExcludePunctuation: true,
			},
			wantErr: true,
		},
		{
			name: "length 4 with four classes required",
			opts: Options{
				Length:                  4,
				RequireEachIncludedType: true,
			},
		},
		{
			name: "length 3 with four classes required",
			opts: Options{
				Length:                  3,
				RequireEachIncludedType: true,
			},
			wantErr: true,
		},
		{
			name: "required class emptied by exclusions",
			opts: Options{
				Length:                  16,
				ExcludeCharacters:       Numbers,
				RequireEachIncludedType: true,
			},
			wantErr: true,
		},
		{
			name: "class emptied by exclusions but not required",
			opts: Options{
				Length:            16,
				ExcludeCharacters: Numbers,
			},
		},
		{
			name: "only remaining class emptied",
			opts: Options{
				Length:             8,
				ExcludeLowercase:   true,
				ExcludeUppercase:   true,
				ExcludePunctuation: true,
				ExcludeCharacters:  Numbers,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, rerrors.ErrCredentialGeneration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLocal_Generate(t *testing.T) {
	ctx := context.Background()
	generator := NewLocal()

	cases := []Options{
		DefaultOptions(),
		{Length: 4, RequireEachIncludedType: true},
		{Length: 64, ExcludePunctuation: true, RequireEachIncludedType: true},
		{Length: 12, ExcludeLowercase: true, ExcludeUppercase: true, ExcludePunctuation: true},
		{Length: 20, ExcludeCharacters: "abcdefABCDEF012345!#$"},
	}

	for _, opts := range cases {
		for i := 0; i < 50; i++ {
			pw, err := generator.Generate(ctx, opts)
			require.NoError(t, err)
			assert.Len(t, pw, opts.Length)
			assert.NoError(t, opts.Check(pw))
			assert.False(t, strings.ContainsAny(pw, opts.ExcludeCharacters) && opts.ExcludeCharacters != "")
		}
	}
}

func TestLocal_GenerateFailsFast(t *testing.T) {
	opts := Options{
		Length:                  4,
		RequireEachIncludedType: true,
		ExcludeCharacters:       Lowercase,
	}

	pw, err := NewLocal().Generate(context.Background(), opts)
	assert.ErrorIs(t, err, rerrors.ErrCredentialGeneration)
	assert.Empty(t, pw)
}

func TestLocal_GenerateUniqueness(t *testing.T) {
	generator := NewLocal()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pw, err := generator.Generate(context.Background(), DefaultOptions())
		require.NoError(t, err)
		assert.False(t, seen[pw], "duplicate password generated")
		seen[pw] = true
	}
}

func TestOptions_Check(t *testing.T) {
	opts := Options{Length: 6, ExcludePunctuation: true, RequireEachIncludedType: true}

	assert.NoError(t, opts.Check("aB3xyz"))
	assert.ErrorIs(t, opts.Check("aB3xy"), rerrors.ErrCredentialGeneration)
	assert.ErrorIs(t, opts.Check("aB3xy!"), rerrors.ErrCredentialGeneration)
	assert.ErrorIs(t, opts.Check("abcxyz"), rerrors.ErrCredentialGeneration)
}

func TestDefaultOptions_ExcludeUnsafeCharacters(t *testing.T) {
	alphabet := DefaultOptions().Alphabet()
	for _, r := range DefaultExcludeCharacters {
		assert.NotContains(t, alphabet, string(r))
	}
}
