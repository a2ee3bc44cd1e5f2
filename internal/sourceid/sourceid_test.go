package sourceid

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		raw     string
		want    ID
		wantErr bool
	}{
		{"IU_ANMO_00_BHZ", ID{"IU", "ANMO", "00", "BHZ"}, false},
		{"IU_ANMO__BHZ", ID{"IU", "ANMO", "", "BHZ"}, false},
		{"not-a-source-id", ID{}, true},
		{"TOO_MANY_FIELDS_HERE_X", ID{}, true},
	}
	for _, c := range cases {
		got, err := Parse(c.raw)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %+v", c.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", c.raw, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.raw, got, c.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	id := ID{"IU", "ANMO", "00", "BHZ"}
	got, err := Parse(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Errorf("round trip = %+v, want %+v", got, id)
	}
}
