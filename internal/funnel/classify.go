package funnel

import (
	"regexp"
	"strings"

	"github.com/superzylo/vendo/internal/catalog"
)

// purchaseIntentPatterns are the signals that the customer is moving
// toward a purchase. Any single match counts as intent.
var purchaseIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(precio|cu[aá]nt[oa]|cuesta|vale|tarifa)`),
	regexp.MustCompile(`(?i)(compr(ar|o)|adquirir|contratar|suscripci[óo]n|activar)`),
	regexp.MustCompile(`(?i)(quiero|necesito|busco|me interesa|me gustar[ií]a)`),
	regexp.MustCompile(`(?i)(confirmar|cerrar|agendar|reservar)`),
	regexp.MustCompile(`(?i)(pago|transfer(ir|encia)|deposit[oó]|yape)`),
	regexp.MustCompile(`(?i)(pag[ée]|envi[eé]|adjunto).*(comprobante|voucher|captura)`),
}

// stageRules map text patterns to target stages, most advanced first.
// The first matching rule wins; a non-match leaves the stage unchanged.
var stageRules = []struct {
	re    *regexp.Regexp
	stage Stage
}{
	{regexp.MustCompile(`(?i)(ya|acabo|reci[ée]n|listo).*(pagu[eé]|transfer[ií]|yape[eé]|dep[oó]sit[oó])`), StageConfirmed},
	{regexp.MustCompile(`(?i)(pago|transfer(ir|encia)|deposit[oó]|yape|plin|m[eé]todo de pago|metodo de pago)`), StagePaymentPending},
	{regexp.MustCompile(`(?i)(confirm(o|ar)|listo|cerramos|cierre|reserva)`), StageClose},
	{regexp.MustCompile(`(?i)(plan|paquete|premium|mensual|anual|full|completo)`), StageProposal},
}

var (
	planKeywordsRe = regexp.MustCompile(`(?i)(plan|paquete|premium|mensual|anual|full|completo)`)
	planLabelRe    = regexp.MustCompile(`(?i)(plan|paquete)\s+([a-z0-9ñáéíóúü+-]{2,20})`)
	planMensualRe  = regexp.MustCompile(`(?i)mensual`)
	planAnualRe    = regexp.MustCompile(`(?i)anual`)
	planPremiumRe  = regexp.MustCompile(`(?i)premium`)
)

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bme\s+llamo\s+([a-zñáéíóúü' -]{2,40})`),
	regexp.MustCompile(`(?i)\bmi\s+nombre\s+es\s+([a-zñáéíóúü' -]{2,40})`),
	regexp.MustCompile(`(?i)\bsoy\s+([a-zñáéíóúü' -]{2,40})`),
}

// Classification is the tagged result of running one turn's text through
// the pattern tables.
type Classification struct {
	Intent  bool   // any purchase-intent signal present
	Target  Stage  // stage the text points at (before monotonic advance)
	Service string // canonical service label, "" if none
	Plan    string // extracted plan label, "" if none
	Name    string // extracted customer name, "" if none
}

// Classify evaluates the ordered pattern tables against one turn's text.
// currentStage is the fallback target when no stage rule matches.
func Classify(currentStage Stage, text string) Classification {
	c := Classification{Target: currentStage}

	c.Intent = hasPurchaseIntent(text)
	for _, rule := range stageRules {
		if rule.re.MatchString(text) {
			c.Target = rule.stage
			break
		}
	}
	// Generic purchase intent with no stage phrase means discovery at
	// minimum; Advance keeps any higher current stage.
	if c.Intent && c.Target == currentStage {
		c.Target = currentStage.Advance(StageDiscovery)
	}

	c.Service = catalog.DetectService(text)
	c.Plan = extractPlan(text)
	c.Name = extractName(text)
	return c
}

func hasPurchaseIntent(text string) bool {
	for _, re := range purchaseIntentPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// extractPlan pulls a plan label out of plan/package phrasing.
func extractPlan(text string) string {
	if !planKeywordsRe.MatchString(text) {
		return ""
	}
	if m := planLabelRe.FindStringSubmatch(text); len(m) == 3 {
		return strings.ToUpper(m[2])
	}
	switch {
	case planMensualRe.MatchString(text):
		return "MENSUAL"
	case planAnualRe.MatchString(text):
		return "ANUAL"
	case planPremiumRe.MatchString(text):
		return "PREMIUM"
	}
	return "ESPECIAL"
}

// extractName finds a first-person self-introduction and returns the
// first two name words, title-cased.
func extractName(text string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		cleaned := strings.Join(strings.Fields(m[1]), " ")
		if len(cleaned) < 2 || len(cleaned) > 40 {
			continue
		}
		words := strings.Fields(cleaned)
		if len(words) > 2 {
			words = words[:2]
		}
		for i, w := range words {
			words[i] = titleCase(w)
		}
		return strings.Join(words, " ")
	}
	return ""
}

func titleCase(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return ""
	}
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
