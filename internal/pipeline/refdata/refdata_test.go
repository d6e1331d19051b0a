package refdata

import "testing"

func TestIsBrand(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"renault", true},
		{"Renault", true},
		{"  CUPRA  ", true},
		{"mercedes-benz", true},
		{"lynk & co", true},
		{"delorean", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsBrand(tc.name); got != tc.want {
			t.Errorf("IsBrand(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSourceFor(t *testing.T) {
	if s, ok := SourceFor("Coches.net"); !ok || s != "portal" {
		t.Fatalf("SourceFor(Coches.net) = %q, %v", s, ok)
	}
	if s, ok := SourceFor("VO CaixaBank"); !ok || s != "la_caixa" {
		t.Fatalf("SourceFor(VO CaixaBank) = %q, %v", s, ok)
	}
	if _, ok := SourceFor("Unknown Source"); ok {
		t.Fatal("SourceFor(Unknown Source) should miss")
	}
	// Origins are matched exactly as exported, including case.
	if _, ok := SourceFor("coches.net"); ok {
		t.Fatal("SourceFor should be case-sensitive")
	}
}

func TestIsBDCUser(t *testing.T) {
	if !IsBDCUser("Pol Simon") {
		t.Fatal("Pol Simon should be BDC")
	}
	if !IsBDCUser("  sistema avi automocion ") {
		t.Fatal("trimmed match should be BDC")
	}
	// The double space is part of the recorded agent name.
	if !IsBDCUser("daniel  lopez ruiz") {
		t.Fatal("daniel  lopez ruiz should be BDC")
	}
	if IsBDCUser("ana vendedora") {
		t.Fatal("dealership user must not be BDC")
	}
}
