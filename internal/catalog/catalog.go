// Package catalog holds the SUPER ZYLO product table: keyword → canonical
// service label lookup, per-service pitch lines, and the phrases that
// count as a catalog request.
package catalog

import (
	"regexp"
	"sort"
	"strings"
)

// productKeywords maps lowercase text needles to canonical service
// labels. Ordered so more specific needles win over generic ones.
var productKeywords = []struct {
	needle string
	label  string
}{
	{"disney", "Disney+ Premium + ESPN"},
	{"hbo", "HBO Max"},
	{"prime", "Prime Video"},
	{"amazon", "Prime Video"},
	{"chatgpt", "ChatGPT"},
	{"gpt", "ChatGPT"},
	{"perplexity", "Perplexity AI"},
	{"canva", "Canva"},
	{"gemini", "Gemini + Veo 3"},
	{"turnitin", "Turnitin"},
	{"youtube", "YouTube Premium + Music"},
	{"direc", "DirecTV"},
	{"capcut", "CapCut"},
	{"luna", "Luna (Gaming)"},
	{"grupo", "Grupo VIP"},
	{"vip", "Grupo VIP"},
	{"sora", "Sora"},
	{"scribd", "Scribd"},
}

// pitchLines carries the proposal-stage lines for each service, in send
// order. Prices in soles.
var pitchLines = map[string][]string{
	"ChatGPT": {
		"ChatGPT compartida S/10: acceso inmediato, un dispositivo, soporte completo. 😉",
		"ChatGPT completa S/20: privada a tu correo, incluye Canva gratis y varios dispositivos. 💎",
		"¿Listo para asegurar la opción ideal y recibirla al toque? 😄",
	},
	"Sora": {
		"Sora S/15: generador de video IA con acceso premium original. 🎬",
		"Entrega inmediata y garantía activa, perfecto para proyectos creativos. ✨",
		"¿La confirmamos y te la envío hoy mismo? 😄",
	},
	"Perplexity AI": {
		"Perplexity AI S/8: cuenta completa ilimitada, ideal para investigación veloz. 🔍",
		"Garantía y soporte directo después del pago. 🤝",
		"¿Quieres que la active ahora mismo? 😄",
	},
	"Gemini + Veo 3": {
		"Gemini + Veo 3 S/30: cuenta completa 1 año, IA visual y texto avanzada. 🚀",
		"Uso privado con garantía mensual y soporte personalizado. 🛡️",
		"¿Cerramos la activación hoy? 😄",
	},
	"Turnitin": {
		"Turnitin S/15: cuenta completa con verificación de plagio ilimitada. 📚",
		"Ideal para tesis y trabajos, entrega inmediata tras pago. ✅",
		"¿Lo aseguramos en este momento? 😄",
	},
	"Grupo VIP": {
		"Grupo VIP S/20: aprende a crear y vender cuentas premium paso a paso. 🧠",
		"Incluye estrategias IA y acompañamiento directo. 💼",
		"¿Te uno al grupo ahora mismo? 😄",
	},
	"Canva": {
		"Canva S/4: cuenta a tu correo, acceso pro ilimitado y plantillas premium. 🎨",
		"Garantía y soporte inmediato tras el pago. ✅",
		"¿Quieres activarla ya mismo? 😄",
	},
	"CapCut": {
		"CapCut S/15: cuenta completa para edición premium sin restricciones. 🎬",
		"Incluye todos los efectos y almacenamiento en la nube. ☁️",
		"¿Confirmamos y lo activo hoy? 😄",
	},
	"Disney+ Premium + ESPN": {
		"Disney+ Premium + ESPN S/5: perfil con todo el contenido premium. 🍿",
		"Funciona en una pantalla con garantía y soporte inmediato. ✅",
		"¿Te reservo el perfil ahora? 😄",
	},
	"HBO Max": {
		"HBO Max S/5: perfil premium con estrenos y clásicos listos para ver. 🎥",
		"Entrega rápida y soporte ante cualquier duda. ✅",
		"¿Te lo activo hoy mismo? 😄",
	},
	"Prime Video": {
		"Prime Video S/4: perfil premium con todo el catálogo y calidad HD. 🎬",
		"Incluye soporte y garantía durante el periodo activo. 🛡️",
		"¿Apartamos tu perfil ahora? 😄",
	},
	"YouTube Premium + Music": {
		"YouTube Premium + Music S/5: se activa directo a tu correo. 🎧",
		"Disfruta sin anuncios y con descargas offline al instante. 📲",
		"¿Quieres que lo configure de una vez? 😄",
	},
	"DirecTV": {
		"DirecTV S/15: activación directa en tu TV con canales completos. 📺",
		"Incluye soporte para la instalación inmediata. 🛠️",
		"¿Programamos la activación hoy mismo? 😄",
	},
	"Luna (Gaming)": {
		"Luna Gaming S/20: acceso premium a la biblioteca completa en la nube. 🎮",
		"Uso estable y soporte para configuración. ✅",
		"¿Te activo la cuenta ahora mismo? 😄",
	},
	"Scribd": {
		"Scribd S/4: cuenta completa con libros y audiolibros ilimitados. 📚",
		"Se activa en minutos y cuenta con garantía mensual. ✅",
		"¿Deseas confirmarla hoy? 😄",
	},
}

var catalogRequestRe = regexp.MustCompile(`(?i)(servicio|servicios|planes|opciones|cat[aá]logo|ofertas|ofrecen|ofreces|que tienen|qué tienen|quiero adquirir|quiero contratar|mu[eé]strame los servicios|mostrar servicios)`)

// DetectService returns the canonical label for the first product keyword
// found in text, or "" if none matches.
func DetectService(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range productKeywords {
		if strings.Contains(lower, kw.needle) {
			return kw.label
		}
	}
	return ""
}

// WantsCatalog reports whether text asks for the service catalog without
// naming a specific service.
func WantsCatalog(text string) bool {
	return catalogRequestRe.MatchString(text) && DetectService(text) == ""
}

// PitchLines returns the proposal lines for a canonical service label,
// or nil if the service has no scripted pitch.
func PitchLines(label string) []string {
	lines, ok := pitchLines[label]
	if !ok {
		return nil
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Labels returns every canonical service label with a scripted pitch,
// in alphabetical order.
func Labels() []string {
	out := make([]string, 0, len(pitchLines))
	for label := range pitchLines {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
