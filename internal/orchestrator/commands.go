package orchestrator

import (
	"log/slog"
	"regexp"
	"strings"
)

var (
	resetRe = regexp.MustCompile(`(?i)^\s*/reset\b`)
	pingRe  = regexp.MustCompile(`(?i)^\s*/ping\b`)
)

const (
	resetReply = "Memoria del chat reiniciada. Cuéntame qué servicio necesitas y lo cerramos rápido ✅"
	pingReply  = "Pong 🏓 listo para ayudarte con tu compra."
	helpReply  = "Comandos disponibles: /reset para empezar de cero, /ping para probar la conexión 🙂"
)

type commandOutcome struct {
	replies   []string // responses the commands produced, in order
	remaining []string // non-command fragments left for the funnel
}

// handleCommands consumes slash-command fragments from a turn bundle.
// Unknown slash commands answer with the help text instead of leaking
// into the model.
func (o *Orchestrator) handleCommands(chatID string, texts []string) commandOutcome {
	var out commandOutcome
	for _, text := range texts {
		switch {
		case resetRe.MatchString(text):
			o.resetChat(chatID)
			out.replies = append(out.replies, resetReply)
		case pingRe.MatchString(text):
			out.replies = append(out.replies, pingReply)
		case strings.HasPrefix(strings.TrimSpace(text), "/"):
			out.replies = append(out.replies, helpReply)
		default:
			out.remaining = append(out.remaining, text)
		}
	}
	return out
}

// resetChat forgets everything the pipeline accumulated for one chat:
// funnel session, model memory, catalog cooldown, pending bundle,
// dedup residue and the rate limiter span.
func (o *Orchestrator) resetChat(chatID string) {
	o.sessions.Reset(chatID)
	o.gateway.History().Reset(chatID)
	o.debounce.Cancel(chatID)
	o.limiter.Reset(chatID)
	o.dedupe.ForgetChat(chatID)

	o.mu.Lock()
	delete(o.catalogSent, chatID)
	o.mu.Unlock()

	slog.Info("chat reset", "chat", chatID)
}
