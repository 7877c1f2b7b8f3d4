package population

import "testing"

func TestExtractVariant(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantDesc    string
		wantVariant string
	}{
		{"empty", "", "", ""},
		{"no variant", "Pikachu", "Pikachu", ""},
		{"trims plain text", "  Pikachu  ", "Pikachu", ""},
		{"bracketed first edition", "Blastoise (1st Edition)", "Blastoise", "1st Edition"},
		{"bare first edition", "Charizard 1st Edition", "Charizard", "1st Edition"},
		{"abbreviated first edition", "Venusaur (1st ed)", "Venusaur", "1st Edition"},
		{"dash holo", "Mewtwo-Holo", "Mewtwo", "Holo"},
		{"spaced holo", "Charizard Holo", "Charizard", "Holo"},
		{"case insensitive", "charizard HOLO", "charizard", "Holo"},
		{"first edition wins over holo", "Charizard 1st Edition Holo", "Charizard", "1st Edition"},
		{"variant only keeps text", "Holo", "Holo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, variant := ExtractVariant(tt.in)
			if desc != tt.wantDesc || variant != tt.wantVariant {
				t.Errorf("ExtractVariant(%q) = (%q, %q), want (%q, %q)",
					tt.in, desc, variant, tt.wantDesc, tt.wantVariant)
			}
		})
	}
}
