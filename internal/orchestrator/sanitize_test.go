package orchestrator

import "testing"

func TestSanitizeReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Tu pedido está confirmado.", "Tu pedido está confirmado."},
		{"strips think tags", "<think>debo buscar el local</think>¡Hola! ¿Qué querés pedir?", "¡Hola! ¿Qué querés pedir?"},
		{"strips thinking tags across lines", "<thinking>\nrazonamiento\n</thinking>\nListo, agregué la pizza.", "Listo, agregué la pizza."},
		{"strips echoed tool call lines", "[Tool Call: search_vendors]\nEncontré 3 locales cerca tuyo.", "Encontré 3 locales cerca tuyo."},
		{"collapses blank runs", "Hola.\n\n\n\nChau.", "Hola.\n\nChau."},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeReply(tt.in); got != tt.want {
				t.Errorf("sanitizeReply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
