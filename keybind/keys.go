package keybind

// Virtual key codes of a US keyboard layout as reported by macOS. Other
// platforms translate their key events to these codes.
const (
	KeyA      uint16 = 0x00
	KeyS      uint16 = 0x01
	KeyD      uint16 = 0x02
	KeyF      uint16 = 0x03
	KeyH      uint16 = 0x04
	KeyG      uint16 = 0x05
	KeyZ      uint16 = 0x06
	KeyX      uint16 = 0x07
	KeyC      uint16 = 0x08
	KeyV      uint16 = 0x09
	KeyB      uint16 = 0x0B
	KeyQ      uint16 = 0x0C
	KeyW      uint16 = 0x0D
	KeyE      uint16 = 0x0E
	KeyR      uint16 = 0x0F
	KeyY      uint16 = 0x10
	KeyT      uint16 = 0x11
	Key1      uint16 = 0x12
	Key2      uint16 = 0x13
	Key3      uint16 = 0x14
	Key4      uint16 = 0x15
	Key6      uint16 = 0x16
	Key5      uint16 = 0x17
	Key9      uint16 = 0x19
	Key7      uint16 = 0x1A
	Key8      uint16 = 0x1C
	Key0      uint16 = 0x1D
	KeyO      uint16 = 0x1F
	KeyU      uint16 = 0x20
	KeyI      uint16 = 0x22
	KeyP      uint16 = 0x23
	KeyReturn uint16 = 0x24
	KeyL      uint16 = 0x25
	KeyJ      uint16 = 0x26
	KeyK      uint16 = 0x28
	KeyN      uint16 = 0x2D
	KeyM      uint16 = 0x2E
	KeyTab    uint16 = 0x30
	KeySpace  uint16 = 0x31
	KeyDelete uint16 = 0x33
	KeyEscape uint16 = 0x35
	KeyF5     uint16 = 0x60
	KeyF6     uint16 = 0x61
	KeyF7     uint16 = 0x62
	KeyF3     uint16 = 0x63
	KeyF8     uint16 = 0x64
	KeyF9     uint16 = 0x65
	KeyF11    uint16 = 0x67
	KeyF10    uint16 = 0x6D
	KeyF12    uint16 = 0x6F
	KeyF4     uint16 = 0x76
	KeyF2     uint16 = 0x78
	KeyF1     uint16 = 0x7A
	KeyLeft   uint16 = 0x7B
	KeyRight  uint16 = 0x7C
	KeyDown   uint16 = 0x7D
	KeyUp     uint16 = 0x7E
)

var labels = map[uint16]string{
	KeySpace:  "SPACE",
	KeyReturn: "⏎",
	KeyTab:    "TAB",
	KeyDelete: "⌫",
	KeyEscape: "ESC",
	KeyLeft:   "←",
	KeyRight:  "→",
	KeyUp:     "↑",
	KeyDown:   "↓",
	KeyF1:     "F1",
	KeyF2:     "F2",
	KeyF3:     "F3",
	KeyF4:     "F4",
	KeyF5:     "F5",
	KeyF6:     "F6",
	KeyF7:     "F7",
	KeyF8:     "F8",
	KeyF9:     "F9",
	KeyF10:    "F10",
	KeyF11:    "F11",
	KeyF12:    "F12",
	KeyA:      "A",
	KeyB:      "B",
	KeyC:      "C",
	KeyD:      "D",
	KeyE:      "E",
	KeyF:      "F",
	KeyG:      "G",
	KeyH:      "H",
	KeyI:      "I",
	KeyJ:      "J",
	KeyK:      "K",
	KeyL:      "L",
	KeyM:      "M",
	KeyN:      "N",
	KeyO:      "O",
	KeyP:      "P",
	KeyQ:      "Q",
	KeyR:      "R",
	KeyS:      "S",
	KeyT:      "T",
	KeyU:      "U",
	KeyV:      "V",
	KeyW:      "W",
	KeyX:      "X",
	KeyY:      "Y",
	KeyZ:      "Z",
	Key0:      "0",
	Key1:      "1",
	Key2:      "2",
	Key3:      "3",
	Key4:      "4",
	Key5:      "5",
	Key6:      "6",
	Key7:      "7",
	Key8:      "8",
	Key9:      "9",
}

var codes = map[string]uint16{}

func init() {
	for code, label := range labels {
		codes[label] = code
	}
	codes["RETURN"] = KeyReturn
	codes["ENTER"] = KeyReturn
	codes["DELETE"] = KeyDelete
	codes["BACKSPACE"] = KeyDelete
	codes["LEFT"] = KeyLeft
	codes["RIGHT"] = KeyRight
	codes["UP"] = KeyUp
	codes["DOWN"] = KeyDown
}

// KeyLabel returns the display label of a key code, "?" for unknown keys.
func KeyLabel(code uint16) string {
	if s, ok := labels[code]; ok {
		return s
	}
	return "?"
}

// KeyCode returns the key code for a label as returned by KeyLabel, or one of
// the names RETURN, ENTER, DELETE, BACKSPACE, LEFT, RIGHT, UP and DOWN.
// Letters are case-insensitive.
func KeyCode(label string) (uint16, bool) {
	c, ok := codes[upper(label)]
	return c, ok
}
