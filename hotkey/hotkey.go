package hotkey

import (
	"log"
	"strings"

	gohook "github.com/robotn/gohook"
)

// Listen registers a global hotkey combination (e.g. "Ctrl+Alt+V") and
// invokes callback on each press. The callback should only post into the
// event loop; it runs on the hook goroutine.
func Listen(combo string, callback func()) {
	keys := parseHotkey(combo)
	if len(keys) == 0 {
		log.Printf("Hotkey: no valid keys in %q, listener disabled", combo)
		return
	}
	log.Printf("Hotkey: listener configured for %s", combo)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()

		gohook.Register(gohook.KeyDown, keys, func(e gohook.Event) {
			log.Printf("Hotkey: %s pressed", combo)
			if callback != nil {
				callback()
			}
		})
		s := gohook.Start()
		<-gohook.Process(s)
		log.Printf("Hotkey: event channel closed")
	}()
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+v" to normalized key
// names in gohook's vocabulary.
func parseHotkey(combo string) []string {
	parts := strings.Split(strings.ToLower(combo), "+")
	var keys []string

	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "win", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}

	return keys
}
