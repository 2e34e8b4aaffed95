package catalog

import "testing"

func TestDetectService(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"quiero chatgpt", "ChatGPT"},
		{"me interesa el gpt plus", "ChatGPT"},
		{"tienes disney?", "Disney+ Premium + ESPN"},
		{"precio de amazon prime", "Prime Video"},
		{"hola buenas", ""},
	}

	for _, tt := range tests {
		if got := DetectService(tt.text); got != tt.want {
			t.Errorf("DetectService(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestWantsCatalog(t *testing.T) {
	if !WantsCatalog("qué servicios ofrecen?") {
		t.Error("generic catalog ask should match")
	}
	if WantsCatalog("quiero el servicio de chatgpt") {
		t.Error("naming a service should not count as a catalog ask")
	}
	if WantsCatalog("hola") {
		t.Error("greeting is not a catalog ask")
	}
}

func TestPitchLines(t *testing.T) {
	lines := PitchLines("ChatGPT")
	if len(lines) != 3 {
		t.Fatalf("ChatGPT pitch lines = %d, want 3", len(lines))
	}
	if PitchLines("No Such Service") != nil {
		t.Error("unknown service should have no pitch")
	}

	// Mutating the returned slice must not affect the table.
	lines[0] = "tampered"
	if PitchLines("ChatGPT")[0] == "tampered" {
		t.Error("PitchLines must return a copy")
	}
}
