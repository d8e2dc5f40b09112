package models

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Decision values the analyst model may emit in dictamen.decision.
const (
	DecisionAprobado     = "APROBADO"
	DecisionCondicionado = "CONDICIONADO"
	DecisionRechazado    = "RECHAZADO"
)

// Producto values the analyst model may emit in dictamen.producto.
const (
	ProductoLibreInversion = "LIBRE_INVERSION"
	ProductoCompraCartera  = "COMPRA_CARTERA"
	ProductoAmbos          = "AMBOS"
	ProductoNoAplica       = "NO_APLICA"
)

// The model is instructed to answer with a single JSON object, but
// responses occasionally carry prose around it. Grab the outermost
// braces and parse what is inside.
var responseJSONRe = regexp.MustCompile(`\{[\s\S]*\}`)

// ExtractResponseJSON pulls the JSON object out of a raw model response.
func ExtractResponseJSON(raw string) (JSONB, error) {
	match := responseJSONRe.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("no JSON object found in model response")
	}

	var parsed JSONB
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model response JSON: %w", err)
	}

	return parsed, nil
}

// ApplyDictamen copies the verdict out of a parsed model response into the
// typed columns of the record and stores the full document in
// ClaudeResponseParsed. Fields absent from the document are left as they
// were; a partial verdict is still worth auditing.
func ApplyDictamen(rec *CreditValidationAudit, parsed JSONB) {
	if rec == nil || parsed == nil {
		return
	}

	rec.ClaudeResponseParsed = parsed

	dictamen := subDocument(parsed, "dictamen")
	if s, ok := stringField(dictamen, "decision"); ok {
		rec.Decision = &s
	}
	if s, ok := stringField(dictamen, "producto"); ok {
		rec.Producto = &s
	}
	if f, ok := numberField(dictamen, "montoMaximo"); ok {
		rec.MontoMaximo = &f
	}
	if n, ok := intField(dictamen, "plazoMaximo"); ok {
		rec.PlazoMaximo = &n
	}

	if f, ok := numberField(subDocument(parsed, "capacidadPago"), "capacidadDisponible"); ok {
		rec.CapacidadDisponible = &f
	}
	if b, ok := boolField(subDocument(parsed, "inaceptables"), "tiene"); ok {
		rec.TieneInaceptables = &b
	}
	if n, ok := intField(subDocument(parsed, "embargos"), "cantidadEnDesprendible"); ok {
		rec.CantidadEmbargos = &n
	}
	if n, ok := intField(subDocument(parsed, "procesosJudiciales"), "totalComoDemandado60m"); ok {
		rec.ProcesosDemandado60M = &n
	}

	if s, ok := stringField(parsed, "resumen"); ok {
		s = truncateRunes(s, MaxResumenLen)
		rec.Resumen = &s
	}
}

func subDocument(doc JSONB, key string) JSONB {
	if doc == nil {
		return nil
	}
	if m, ok := doc[key].(map[string]any); ok {
		return JSONB(m)
	}
	return nil
}

func stringField(doc JSONB, key string) (string, bool) {
	if doc == nil {
		return "", false
	}
	s, ok := doc[key].(string)
	return s, ok
}

func numberField(doc JSONB, key string) (float64, bool) {
	if doc == nil {
		return 0, false
	}
	f, ok := doc[key].(float64)
	return f, ok
}

func intField(doc JSONB, key string) (int, bool) {
	f, ok := numberField(doc, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func boolField(doc JSONB, key string) (bool, bool) {
	if doc == nil {
		return false, false
	}
	b, ok := doc[key].(bool)
	return b, ok
}

// truncateRunes shortens s to at most max characters. VARCHAR limits
// count characters, not bytes, and resumen text is Spanish.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
