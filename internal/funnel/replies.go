package funnel

import (
	"fmt"
	"strings"

	"github.com/superzylo/vendo/internal/catalog"
)

// Intent tags recorded in the interaction log.
const (
	IntentNone     = "sin_texto"
	IntentIdle     = "sin_intencion"
	IntentOffTopic = "cambio_tema"
	IntentPurchase = "intencion_compra"
)

// maxReplyWords keeps each scripted line inside the WhatsApp-friendly
// budget the persona prompt promises.
const maxReplyWords = 30

// offTopicNudges alternate so the redirect never reads copy-pasted.
var offTopicNudges = []string{
	"Te ayudo con tu compra. ¿Qué servicio confirmamos hoy? 🙂",
	"Cuando desees confirmar, te paso el método de pago 😉",
}

// Outcome is the scripted layer's verdict for one turn.
type Outcome struct {
	Intent  string
	Silent  bool     // no reply at all (idle chat before any signal)
	Replies []string // templated messages; empty when Silent
}

// Apply runs one turn's text through the funnel: updates slots and
// stage on the session (monotonic advance) and returns the scripted
// outcome. The caller decides whether the model replaces the script.
func Apply(sess *Session, text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{Intent: IntentNone, Silent: true}
	}

	c := Classify(sess.Stage, text)

	if c.Name != "" {
		sess.Name = c.Name
	}
	if c.Service != "" && sess.Interest == "" {
		sess.Interest = c.Service
	}
	if c.Plan != "" {
		sess.Plan = c.Plan
	}

	if !c.Intent && sess.Stage == StageStart {
		// Idle chit-chat before any purchase signal: stay silent so the
		// bot never opens a conversation nobody started.
		return Outcome{Intent: IntentIdle, Silent: true}
	}

	if !c.Intent {
		sess.OffTopicCount++
		nudge := offTopicNudges[0]
		if sess.OffTopicCount > 1 {
			nudge = offTopicNudges[1]
		}
		return Outcome{Intent: IntentOffTopic, Replies: []string{nudge}}
	}

	sess.OffTopicCount = 0
	sess.HasIntent = true
	sess.Stage = sess.Stage.Advance(c.Target)
	sess.LastIntent = c.Target

	return Outcome{Intent: IntentPurchase, Replies: stageReplies(sess)}
}

// stageReplies builds the templated messages for the session's stage.
func stageReplies(sess *Session) []string {
	product := sess.Interest
	if product == "" {
		product = "el servicio"
	}

	switch sess.Stage {
	case StageDiscovery:
		greeting := fmt.Sprintf("Genial %s🙌 %s está listo con entrega inmediata. 😎", namePrefix(sess), product)
		return shortAll(
			greeting,
			"¿Te paso los pasos para comprarlo al toque? 🛒",
		)
	case StageProposal:
		return proposalReplies(sess)
	case StageClose:
		return shortAll(
			fmt.Sprintf("Perfecto, reservo %s para ti ahora mismo. 😃", product),
			"¿Te comparto el método de pago y cerramos hoy? 💳",
		)
	case StagePaymentPending:
		return shortAll(
			"Paga por Yape 942632719 a nombre de Jair, también Plin, PayPal, Binance o transferencia. 💰",
			"Envíame la captura apenas pagues y lo activo en minutos. ⚡",
		)
	case StageConfirmed:
		return shortAll(
			fmt.Sprintf("Pago confirmado, activaré %s en minutos y te aviso. 🚀", product),
			"Gracias por confiar en SUPER ZYLO, disfruta la experiencia. 🙌",
		)
	default:
		hello := "Hola 👋"
		if sess.Name != "" {
			hello = "Hola " + sess.Name
		}
		return shortAll(
			fmt.Sprintf("%s soy tu asesor SUPER ZYLO, listo con %s. 🤝", hello, product),
			"Cuéntame qué necesitas saber y te ayudo a comprarlo ya. 🙂",
		)
	}
}

// proposalReplies prefers the catalog's scripted pitch for the chosen
// service, falling back to the generic proposal lines.
func proposalReplies(sess *Session) []string {
	if sess.Interest != "" {
		if lines := catalog.PitchLines(sess.Interest); lines != nil {
			return shortAll(lines...)
		}
	}
	return shortAll(
		"Cada servicio es individual, sin planes Plus ni Pro, todo 100% original. ✨",
		"Incluye entrega inmediata, soporte y garantía activa tras tu pago. ✅",
		"¿Confirmamos el que prefieras y lo recibes hoy? 😄",
	)
}

func namePrefix(sess *Session) string {
	if sess.Name == "" {
		return ""
	}
	return sess.Name + " "
}

func shortAll(lines ...string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = ensureShort(l)
	}
	return out
}

// ensureShort caps a line at maxReplyWords whitespace-split words.
func ensureShort(text string) string {
	words := strings.Fields(text)
	if len(words) <= maxReplyWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxReplyWords], " ")
}
