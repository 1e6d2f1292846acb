package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/types"
)

func TestBuildMatchQuery(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "single optional", raw: "california", want: `"california"`},
		{name: "optionals or together", raw: "california bay", want: `"california" OR "bay"`},
		{name: "single required", raw: "+california", want: `"california"`},
		{name: "requireds and together", raw: "+california +bay", want: `"california" AND "bay"`},
		{name: "required wins over optional", raw: "+california bay", want: `"california"`},
		{name: "quotes escaped", raw: `+o"brien`, want: `"o""brien"`},
		{name: "bare plus skipped", raw: "+ california", want: `"california"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildMatchQuery(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildMatchQueryEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "+"} {
		_, err := buildMatchQuery(raw)
		assert.ErrorIs(t, err, types.ErrInvalidFilter, "raw=%q", raw)
	}
}
