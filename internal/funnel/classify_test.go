package funnel

import "testing"

func TestClassify_StageTargets(t *testing.T) {
	tests := []struct {
		text   string
		want   Stage
		intent bool
	}{
		{"cuánto cuesta?", StageDiscovery, true},
		{"quiero chatgpt", StageDiscovery, true},
		{"quiero el plan mensual", StageProposal, true},
		{"listo, quiero cerrar la compra", StageClose, true},
		{"cómo hago el pago?", StagePaymentPending, true},
		{"ya pagué por yape", StageConfirmed, true},
		{"hola, qué tal", StageStart, false},
		// A stage phrase without purchase wording targets the stage but
		// carries no intent; the caller decides what that means.
		{"qué planes tienen", StageProposal, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			c := Classify(StageStart, tt.text)
			if c.Target != tt.want {
				t.Errorf("target = %v, want %v", c.Target, tt.want)
			}
			if c.Intent != tt.intent {
				t.Errorf("intent = %v, want %v", c.Intent, tt.intent)
			}
		})
	}
}

func TestClassify_NoMatchKeepsStage(t *testing.T) {
	c := Classify(StageClose, "mmm ok")
	if c.Target != StageClose {
		t.Errorf("target = %v, want close", c.Target)
	}
	if c.Intent {
		t.Error("no intent expected")
	}
}

func TestStage_AdvanceIsMonotonic(t *testing.T) {
	texts := []string{
		"quiero chatgpt",
		"cómo hago el pago?",
		"hola",            // no signal
		"qué planes hay?", // points at proposal, below payment_pending
		"ya pagué, envié la captura",
	}

	stage := StageStart
	prev := stage
	for _, txt := range texts {
		c := Classify(stage, txt)
		stage = stage.Advance(c.Target)
		if stage < prev {
			t.Fatalf("stage regressed from %v to %v on %q", prev, stage, txt)
		}
		prev = stage
	}
	if stage != StageConfirmed {
		t.Errorf("final stage = %v, want confirmado", stage)
	}
}

func TestClassify_Slots(t *testing.T) {
	c := Classify(StageStart, "hola me llamo juan carlos alberto y quiero el plan mensual de chatgpt")
	if c.Name != "Juan Carlos" {
		t.Errorf("name = %q, want 'Juan Carlos'", c.Name)
	}
	if c.Service != "ChatGPT" {
		t.Errorf("service = %q, want ChatGPT", c.Service)
	}
	if c.Plan != "MENSUAL" {
		t.Errorf("plan = %q, want MENSUAL", c.Plan)
	}
}

func TestClassify_PlanLabel(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"quiero el plan premium", "PREMIUM"},
		{"me interesa el paquete anual", "ANUAL"},
		{"el plan full está bien", "FULL"},
		{"quiero algo completo", "ESPECIAL"},
		{"hola", ""},
	}
	for _, tt := range tests {
		if got := extractPlan(tt.text); got != tt.want {
			t.Errorf("extractPlan(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
