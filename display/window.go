package display

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"vaxscreen/messages"
)

var (
	colorNeutral = color.NRGBA{R: 0xAA, G: 0xAA, B: 0xAA, A: 0xFF}
	colorBlue    = color.NRGBA{B: 0xFF, A: 0xFF}
	colorGreen   = color.NRGBA{G: 0xFF, A: 0xFF}
)

// Callbacks wire the window's controls back into the event loop.
type Callbacks struct {
	OnOverride func(v messages.VaccineType)
	OnClear    func()
	// OnClose runs when the operator closes the window; the event loop uses
	// it to deactivate sampling so no orphaned polling keeps running.
	OnClose func()
}

// Window is the Fyne output window: a colored eligibility indicator with the
// manual override buttons of the original tool.
type Window struct {
	win  fyne.Window
	rect *canvas.Rectangle
	text *canvas.Text
}

func NewWindow(app fyne.App, cb Callbacks) *Window {
	w := &Window{}

	w.win = app.NewWindow("OCR Output")
	w.rect = canvas.NewRectangle(colorNeutral)
	w.text = canvas.NewText(awaitingLabel, color.Black)
	w.text.TextSize = 18
	w.text.Alignment = fyne.TextAlignCenter

	btnBlue := widget.NewButton("Blue", func() {
		if cb.OnOverride != nil {
			cb.OnOverride(messages.VaccineBlue)
		}
	})
	btnGreen := widget.NewButton("Green", func() {
		if cb.OnOverride != nil {
			cb.OnOverride(messages.VaccineGreen)
		}
	})
	btnClear := widget.NewButton("Clear", func() {
		if cb.OnClear != nil {
			cb.OnClear()
		}
	})
	buttons := container.NewHBox(btnClear, btnGreen, btnBlue)

	w.win.SetContent(container.NewBorder(nil, buttons, nil, nil,
		container.NewStack(w.rect, container.NewCenter(w.text))))
	w.win.Resize(fyne.NewSize(300, 300))
	w.win.SetCloseIntercept(func() {
		if cb.OnClose != nil {
			cb.OnClose()
		}
		w.win.Close()
	})

	return w
}

// Show makes the window visible.
func (w *Window) Show() { w.win.Show() }

// Display implements Sink. Safe to call from any goroutine; Fyne marshals
// the update onto its UI thread.
func (w *Window) Display(vaccine *messages.VaccineType, label string) {
	fyne.Do(func() {
		w.rect.FillColor = fillColor(vaccine)
		w.rect.Refresh()
		w.text.Text = label
		w.text.Refresh()
	})
}

func fillColor(vaccine *messages.VaccineType) color.Color {
	if vaccine == nil {
		return colorNeutral
	}
	switch *vaccine {
	case messages.VaccineBlue:
		return colorBlue
	case messages.VaccineGreen:
		return colorGreen
	default:
		return colorNeutral
	}
}
