package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIDs(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain ids",
			text: "Includes 10030 and 7894 in good condition",
			want: []string{"10030", "7894"},
		},
		{
			name: "variant suffix",
			text: "Rare 10030-2 sealed box",
			want: []string{"10030-2"},
		},
		{
			name: "deduplicated in order",
			text: "7894 plus 10030 plus 7894 again",
			want: []string{"7894", "10030"},
		},
		{
			name: "euro prefix rejected",
			text: "Asking €1250 for the lot",
			want: nil,
		},
		{
			name: "dollar prefix rejected",
			text: "Price $ 2500 firm",
			want: nil,
		},
		{
			name: "guilder style suffix rejected",
			text: "Nu voor 1250,- op te halen",
			want: nil,
		},
		{
			name: "eur suffix rejected",
			text: "Vraagprijs 1250 euro ophalen",
			want: nil,
		},
		{
			name: "bare year rejected",
			text: "Bought new in 1987 and stored since",
			want: nil,
		},
		{
			name: "year with variant kept",
			text: "Set 1987-1 from the castle series",
			want: []string{"1987-1"},
		},
		{
			name: "postal code rejected",
			text: "Ophalen in Rotterdam, 3011 AB",
			want: nil,
		},
		{
			name: "too short and too long rejected",
			text: "set 123 and serial 12345678",
			want: nil,
		},
		{
			name: "digits inside words rejected",
			text: "model abc10030 and 7894xyz",
			want: nil,
		},
		{
			name: "mixed text",
			text: "Selling 10030-2 and 7894, bought 1999 for €450, Delft 2611 CK",
			want: []string{"10030-2", "7894"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractIDs(tc.text))
		})
	}
}
