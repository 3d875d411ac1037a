package fynechart

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"github.com/max10788/candlescope/src/interaction"
)

// wheelUnit is the ScrollEvent delta the desktop driver reports for one wheel notch.
const wheelUnit = 10

// Notches converts a vertical scroll delta into wheel notches; scrolling up is positive.
func Notches(dy float32) float64 { return float64(dy) / wheelUnit }

// KeyFor maps a named (non-printable) key to a chart binding.
func KeyFor(name fyne.KeyName) (interaction.Key, bool) {
	switch name {
	case fyne.KeyPageUp:
		return interaction.KeyPageUp, true
	case fyne.KeyPageDown:
		return interaction.KeyPageDown, true
	case fyne.KeyHome:
		return interaction.KeyHome, true
	case fyne.KeyEnd:
		return interaction.KeyEnd, true
	case fyne.KeyEscape:
		return interaction.KeyEscape, true
	case fyne.KeyReturn, fyne.KeyEnter:
		return interaction.KeyEnter, true
	}
	return "", false
}

// KeyForRune maps a typed character to a chart binding. Zoom keys arrive as runes so the
// layout-dependent "+" works without Shift tracking.
func KeyForRune(r rune) (interaction.Key, bool) {
	switch r {
	case '+':
		return interaction.KeyPlus, true
	case '=':
		return interaction.KeyEqual, true
	case '-':
		return interaction.KeyMinus, true
	case '0':
		return interaction.KeyZero, true
	}
	return "", false
}

// Modifiers converts fyne modifier flags.
func Modifiers(m fyne.KeyModifier) interaction.Modifiers {
	var out interaction.Modifiers
	if m&fyne.KeyModifierShift != 0 {
		out |= interaction.ModShift
	}
	if m&fyne.KeyModifierAlt != 0 {
		out |= interaction.ModAlt
	}
	if m&fyne.KeyModifierControl != 0 {
		out |= interaction.ModCtrl
	}
	return out
}

// modifierKey reports which modifier a physical key press toggles, if any.
func modifierKey(name fyne.KeyName) interaction.Modifiers {
	switch name {
	case desktop.KeyShiftLeft, desktop.KeyShiftRight:
		return interaction.ModShift
	case desktop.KeyAltLeft, desktop.KeyAltRight:
		return interaction.ModAlt
	case desktop.KeyControlLeft, desktop.KeyControlRight:
		return interaction.ModCtrl
	}
	return 0
}

// Button converts a desktop mouse button; anything but the secondary button pans.
func Button(b desktop.MouseButton) interaction.Button {
	if b == desktop.MouseButtonSecondary {
		return interaction.ButtonSecondary
	}
	return interaction.ButtonPrimary
}
