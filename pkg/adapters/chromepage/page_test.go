package chromepage

import (
	"testing"

	"github.com/chromedp/cdproto/input"
)

func TestParseKeyComboNamedKey(t *testing.T) {
	def, modifiers, err := parseKeyCombo("Enter")
	if err != nil {
		t.Fatalf("parseKeyCombo failed: %v", err)
	}
	if def.key != "Enter" || def.virtualKey != 13 {
		t.Errorf("unexpected key def: %+v", def)
	}
	if modifiers != 0 {
		t.Errorf("expected no modifiers, got %d", modifiers)
	}
}

func TestParseKeyComboSingleChar(t *testing.T) {
	def, modifiers, err := parseKeyCombo("a")
	if err != nil {
		t.Fatalf("parseKeyCombo failed: %v", err)
	}
	if def.key != "a" || def.text != "a" {
		t.Errorf("unexpected key def: %+v", def)
	}
	if modifiers != 0 {
		t.Errorf("expected no modifiers, got %d", modifiers)
	}
}

func TestParseKeyComboModifiers(t *testing.T) {
	tests := []struct {
		combo string
		want  input.Modifier
		key   string
	}{
		{"Control+a", input.ModifierCtrl, "a"},
		{"Ctrl+a", input.ModifierCtrl, "a"},
		{"Shift+Tab", input.ModifierShift, "Tab"},
		{"Alt+ArrowLeft", input.ModifierAlt, "ArrowLeft"},
		{"Meta+c", input.ModifierCommand, "c"},
		{"Control+Shift+r", input.ModifierCtrl | input.ModifierShift, "r"},
	}
	for _, tt := range tests {
		def, modifiers, err := parseKeyCombo(tt.combo)
		if err != nil {
			t.Errorf("parseKeyCombo(%q) failed: %v", tt.combo, err)
			continue
		}
		if modifiers != tt.want {
			t.Errorf("parseKeyCombo(%q): modifiers = %d, want %d", tt.combo, modifiers, tt.want)
		}
		if def.key != tt.key {
			t.Errorf("parseKeyCombo(%q): key = %q, want %q", tt.combo, def.key, tt.key)
		}
	}
}

func TestParseKeyComboErrors(t *testing.T) {
	if _, _, err := parseKeyCombo("Hyper+a"); err == nil {
		t.Error("expected error for unknown modifier")
	}
	if _, _, err := parseKeyCombo("NotAKey"); err == nil {
		t.Error("expected error for unknown multi-char key")
	}
}

func TestMouseButton(t *testing.T) {
	if mouseButton("") != input.Left || mouseButton("left") != input.Left {
		t.Error("expected left as default button")
	}
	if mouseButton("right") != input.Right {
		t.Error("expected right button")
	}
	if mouseButton("middle") != input.Middle {
		t.Error("expected middle button")
	}
}
