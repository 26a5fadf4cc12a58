package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Complete set with box",
			want: "Complete set with box",
		},
		{
			name: "tags stripped",
			in:   "<p>Complete <b>set</b> with box</p>",
			want: "Complete set with box",
		},
		{
			name: "br becomes newline",
			in:   "line one<br>line two<br/>line three",
			want: "line one\nline two\nline three",
		},
		{
			name: "block elements break lines",
			in:   "<div>first</div><div>second</div><ul><li>third</li></ul>",
			want: "first\nsecond\nthird",
		},
		{
			name: "script and style dropped",
			in:   "<style>p{color:red}</style><p>visible</p><script>alert(1)</script>",
			want: "visible",
		},
		{
			name: "whitespace collapsed",
			in:   "<p>too    many\t spaces</p>\n\n\n<p>here</p>",
			want: "too many spaces\nhere",
		},
		{
			name: "entities decoded",
			in:   "<p>5 &euro; &amp; more</p>",
			want: "5 € & more",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CleanHTML(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCleanHTMLKeepsCatalogIDs(t *testing.T) {
	in := `<div>Selling <b>10030-2</b> and 7894<br>Pickup in Delft</div>`
	got, err := CleanHTML(in)
	require.NoError(t, err)
	assert.Contains(t, got, "10030-2")
	assert.Contains(t, got, "7894")
	assert.NotContains(t, got, "<")
}
