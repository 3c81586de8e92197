package models

import "strings"

// EngineName identifies a pluggable extraction backend.
type EngineName string

const (
	EngineDirect     EngineName = "direct"
	EngineMinerU     EngineName = "mineru"
	EngineLayout     EngineName = "layout"
	EngineTesseract  EngineName = "tesseract"
	EngineDeepSeek   EngineName = "deepseek"
	EnginePaddleOCR  EngineName = "paddleocr"
	EngineTrOCR      EngineName = "trocr"
	EngineDonut      EngineName = "donut"
	EngineOlmOCR     EngineName = "olmocr"
	EngineLightOnOCR EngineName = "lightonocr"

	// DefaultEngine is the always-available baseline.
	DefaultEngine = EngineDirect
)

// Engines lists every recognized engine in display order.
var Engines = []EngineName{
	EngineDirect,
	EngineMinerU,
	EngineLayout,
	EngineTesseract,
	EngineDeepSeek,
	EnginePaddleOCR,
	EngineTrOCR,
	EngineDonut,
	EngineOlmOCR,
	EngineLightOnOCR,
}

// Older stored records use the library names of the first implementation.
var engineAliases = map[string]EngineName{
	"pymupdf":    EngineDirect,
	"pdfplumber": EngineLayout,
}

// ExtractionMethod values recorded on every page.
const (
	MethodDirect = "direct"
	MethodOCR    = "ocr"
	MethodVLM    = "vlm"
)

// ParseEngine normalizes a stored engine name. The second result is false
// when the name is empty or not recognized.
func ParseEngine(s string) (EngineName, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", false
	}
	if alias, ok := engineAliases[name]; ok {
		return alias, true
	}
	for _, e := range Engines {
		if string(e) == name {
			return e, true
		}
	}
	return "", false
}

// Valid reports whether e is a recognized engine name.
func (e EngineName) Valid() bool {
	_, ok := ParseEngine(string(e))
	return ok
}

// UsesOCR is false for engines that only read the embedded text layer.
// An empty result from those engines is legitimate, not degenerate.
func (e EngineName) UsesOCR() bool {
	return e != EngineDirect && e != EngineLayout
}

// Method returns the extraction_method recorded for pages this engine produced
// from pixels.
func (e EngineName) Method() string {
	switch e {
	case EngineDirect, EngineLayout:
		return MethodDirect
	case EngineDeepSeek, EngineOlmOCR, EngineLightOnOCR:
		return MethodVLM
	default:
		return MethodOCR
	}
}
