package address

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/leadscan/internal/model"
)

// TestNormalize tests address parsing across the formats seen on county records.
func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want model.NormalizedAddress
	}{
		{
			name: "spelled out state",
			raw:  "711 W NORWOOD CT, SAN ANTONIO, TEXAS 78212",
			want: model.NormalizedAddress{Street: "711 W NORWOOD CT", City: "SAN ANTONIO", State: "TX", Zip: "78212"},
		},
		{
			name: "postal code state",
			raw:  "4502 Rigsby Ave, San Antonio, TX 78222",
			want: model.NormalizedAddress{Street: "4502 Rigsby Ave", City: "San Antonio", State: "TX", Zip: "78222"},
		},
		{
			name: "zip plus four keeps five digits",
			raw:  "10 Elm St, Austin, TX 78701-1234",
			want: model.NormalizedAddress{Street: "10 Elm St", City: "Austin", State: "TX", Zip: "78701"},
		},
		{
			name: "multi segment street",
			raw:  "100 MAIN ST, UNIT 4, HOUSTON, TX 77002",
			want: model.NormalizedAddress{Street: "100 MAIN ST, UNIT 4", City: "HOUSTON", State: "TX", Zip: "77002"},
		},
		{
			name: "two word spelled out state",
			raw:  "5 Oak Rd, Albuquerque, New Mexico 87101",
			want: model.NormalizedAddress{Street: "5 Oak Rd", City: "Albuquerque", State: "NM", Zip: "87101"},
		},
		{
			name: "longest state name wins",
			raw:  "9 Hill Rd, Charleston, West Virginia 25301",
			want: model.NormalizedAddress{Street: "9 Hill Rd", City: "Charleston", State: "WV", Zip: "25301"},
		},
		{
			name: "missing state defaults",
			raw:  "300 PINE ST, SAN ANTONIO, 78209",
			want: model.NormalizedAddress{Street: "300 PINE ST", City: "SAN ANTONIO", State: "TX", Zip: "78209"},
		},
		{
			name: "unknown state token defaults",
			raw:  "300 PINE ST, SAN ANTONIO, ZZ 78209",
			want: model.NormalizedAddress{Street: "300 PINE ST", City: "SAN ANTONIO", State: "TX", Zip: "78209"},
		},
		{
			name: "city shares the tail",
			raw:  "12 BIRCH LN, SCHERTZ TX 78154",
			want: model.NormalizedAddress{Street: "12 BIRCH LN", City: "SCHERTZ", State: "TX", Zip: "78154"},
		},
		{
			name: "no commas",
			raw:  "123 Main St",
			want: model.NormalizedAddress{Street: "123 Main St", State: "TX"},
		},
		{
			name: "extra whitespace and empty segments",
			raw:  "  711  W NORWOOD CT ,, SAN   ANTONIO , TX   78212 ",
			want: model.NormalizedAddress{Street: "711 W NORWOOD CT", City: "SAN ANTONIO", State: "TX", Zip: "78212"},
		},
		{
			name: "lowercase postal code",
			raw:  "711 w norwood ct, san antonio, tx 78212",
			want: model.NormalizedAddress{Street: "711 w norwood ct", City: "san antonio", State: "TX", Zip: "78212"},
		},
		{
			name: "mixed case spelled out state in the tail",
			raw:  "12 Birch Ln, Schertz Texas 78154",
			want: model.NormalizedAddress{Street: "12 Birch Ln", City: "Schertz", State: "TX", Zip: "78154"},
		},
		{
			name: "no commas keeps the input",
			raw:  "4502 Rigsby Ave Apt 2",
			want: model.NormalizedAddress{Street: "4502 Rigsby Ave Apt 2", State: "TX"},
		},
		{
			name: "empty input",
			raw:  "",
			want: model.NormalizedAddress{State: "TX"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.want.Raw = tt.raw
			got := Normalize(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

// TestNormalizeIsPure tests that repeated calls give identical output.
func TestNormalizeIsPure(t *testing.T) {
	t.Parallel()

	raw := "711 W NORWOOD CT, SAN ANTONIO, TEXAS 78212"
	first := Normalize(raw)
	for range 5 {
		if got := Normalize(raw); got != first {
			t.Fatalf("Normalize changed output: %+v vs %+v", got, first)
		}
	}
}

// TestClean tests whitespace collapsing.
func TestClean(t *testing.T) {
	t.Parallel()

	if got := Clean("  a\tB \n c "); got != "a B c" {
		t.Errorf("Clean() = %q", got)
	}
}
