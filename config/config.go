package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"vaxscreen/screenshot"
)

const (
	DefaultDBPath       = "vaxscreen.sqlite"
	DefaultAgeThreshold = 65
	DefaultPollSec      = 5
	DefaultDeadlineSec  = 20
	DefaultHotkey       = "Ctrl+Alt+V"

	// AltEnvPathVar names an env var holding the path to an alternate .env
	// file, checked when no .env sits next to the executable.
	AltEnvPathVar = "VAXSCREEN_ENV"
)

type Config struct {
	DBPath            string
	AgeThreshold      int
	PollIntervalSec   int
	OCRDeadlineSec    int
	AgeRegion         screenshot.Region
	NameRegion        screenshot.Region
	Hotkey            string
	TesseractLang     string
	EnableFileLogging bool
}

func Load() (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use VAXSCREEN_ENV as a path to a config file
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	ageRegion, err := resolveRegion("AGE_REGION")
	if err != nil {
		return nil, err
	}
	nameRegion, err := resolveRegion("NAME_REGION")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath:            getEnvWithDefault("DB_PATH", DefaultDBPath),
		AgeThreshold:      getEnvInt("AGE_THRESHOLD", DefaultAgeThreshold),
		PollIntervalSec:   getEnvInt("POLL_INTERVAL_SEC", DefaultPollSec),
		OCRDeadlineSec:    getEnvInt("OCR_DEADLINE_SEC", DefaultDeadlineSec),
		AgeRegion:         ageRegion,
		NameRegion:        nameRegion,
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		TesseractLang:     os.Getenv("TESSERACT_LANG"),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}

	return cfg, nil
}

// ParseRegion parses a "x,y,width,height" region spec.
func ParseRegion(spec string) (screenshot.Region, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return screenshot.Region{}, fmt.Errorf("region %q: want x,y,width,height", spec)
	}
	vals := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return screenshot.Region{}, fmt.Errorf("region %q: %w", spec, err)
		}
		vals[i] = n
	}
	r := screenshot.Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if !r.Valid() {
		return screenshot.Region{}, fmt.Errorf("region %q: dimensions must be positive", spec)
	}
	return r, nil
}

func resolveRegion(key string) (screenshot.Region, error) {
	spec := strings.TrimSpace(os.Getenv(key))
	if spec == "" {
		// Unset regions are allowed; sampling refuses to start without them.
		return screenshot.Region{}, nil
	}
	return ParseRegion(spec)
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(AltEnvPathVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
