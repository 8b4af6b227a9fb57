package ocr

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"vaxscreen/messages"
	"vaxscreen/screenshot"
)

// FieldKind selects the engine configuration for one on-screen field.
type FieldKind int

const (
	// FieldNumeric constrains recognition to digits (the age field).
	FieldNumeric FieldKind = iota
	// FieldText recognizes free text (the patient name field).
	FieldText
)

func (k FieldKind) String() string {
	if k == FieldNumeric {
		return "numeric"
	}
	return "text"
}

// Engine is the OCR backend boundary: preprocessed PNG bytes in, raw text out.
type Engine interface {
	Recognize(png []byte, kind FieldKind) (string, error)
}

// TesseractEngine recognizes text via the gosseract Tesseract binding.
type TesseractEngine struct {
	lang string
}

func NewTesseractEngine(lang string) *TesseractEngine {
	return &TesseractEngine{lang: lang}
}

func (e *TesseractEngine) Recognize(png []byte, kind FieldKind) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if e.lang != "" {
		if err := client.SetLanguage(e.lang); err != nil {
			return "", fmt.Errorf("failed to set language %q: %w", e.lang, err)
		}
	}
	if kind == FieldNumeric {
		// Digits only, single line: the age field is a short number on screen.
		if err := client.SetWhitelist("0123456789"); err != nil {
			return "", fmt.Errorf("failed to set digit whitelist: %w", err)
		}
		if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
			return "", fmt.Errorf("failed to set page seg mode: %w", err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognition failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// CaptureFunc captures a region and returns it as preprocessed PNG bytes.
type CaptureFunc func(region screenshot.Region) ([]byte, error)

// Recognizer reads the age and name regions and produces one Sample per call.
// A failure in either field is independent: it only leaves that field absent.
type Recognizer struct {
	engine     Engine
	capture    CaptureFunc
	ageRegion  screenshot.Region
	nameRegion screenshot.Region
}

func NewRecognizer(engine Engine, ageRegion, nameRegion screenshot.Region) *Recognizer {
	return &Recognizer{
		engine:     engine,
		capture:    captureProcessed,
		ageRegion:  ageRegion,
		nameRegion: nameRegion,
	}
}

// Sample captures and recognizes both fields. It never returns an error:
// recognition failures are logged and yield absent fields.
func (r *Recognizer) Sample() messages.Sample {
	var s messages.Sample

	if age, ok := r.readNumeric(r.ageRegion); ok {
		s.Age = &age
	}
	if name, ok := r.readText(r.nameRegion); ok {
		s.Name = name
	}
	return s
}

func (r *Recognizer) readNumeric(region screenshot.Region) (int, bool) {
	text, err := r.readField(region, FieldNumeric)
	if err != nil {
		log.Printf("OCR: numeric field failed: %v", err)
		return 0, false
	}
	age, err := ParseAge(text)
	if err != nil {
		log.Printf("OCR: numeric field unparseable (%q), treating as absent", text)
		return 0, false
	}
	return age, true
}

func (r *Recognizer) readText(region screenshot.Region) (string, bool) {
	text, err := r.readField(region, FieldText)
	if err != nil {
		log.Printf("OCR: text field failed: %v", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

func (r *Recognizer) readField(region screenshot.Region, kind FieldKind) (string, error) {
	if !region.Valid() {
		return "", fmt.Errorf("%s region not configured", kind)
	}
	png, err := r.capture(region)
	if err != nil {
		return "", err
	}
	return r.engine.Recognize(png, kind)
}

// ParseAge converts raw digit-whitelisted OCR output into an age.
func ParseAge(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", text)
	}
	return n, nil
}

func captureProcessed(region screenshot.Region) ([]byte, error) {
	img, err := screenshot.CaptureRegion(region)
	if err != nil {
		return nil, err
	}
	processed := screenshot.Preprocess(img)

	if os.Getenv("OCR_DEBUG_SAVE_IMAGES") == "true" {
		debugFilename := fmt.Sprintf("debug_captured_region_%dx%d.png", region.Width, region.Height)
		if data, err := screenshot.EncodePNG(processed); err == nil {
			if werr := os.WriteFile(debugFilename, data, 0600); werr != nil {
				log.Printf("Warning: Could not save debug image: %v", werr)
			} else {
				log.Printf("DEBUG: Saved captured region to %s (size: %d bytes)", debugFilename, len(data))
			}
		}
	}

	return screenshot.EncodePNG(processed)
}
