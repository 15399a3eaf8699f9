package pscontext

// Button is a bitmask flag over the fixed GameCube controller button
// enum used by InputFrame.Buttons.
type Button uint16

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonX
	ButtonY
	ButtonStart
	ButtonZ
	ButtonL
	ButtonR
	ButtonDUp
	ButtonDDown
	ButtonDLeft
	ButtonDRight
)

// InputFrame is one frame of GameCube controller input: a button
// bitmask plus two analog sticks and two analog triggers, each
// centered at 128.
type InputFrame struct {
	Buttons Button
	MainX   uint8
	MainY   uint8
	CX      uint8
	CY      uint8
	TrigL   uint8
	TrigR   uint8
}

// NeutralInputFrame is the all-centered, no-buttons-pressed frame.
func NeutralInputFrame() InputFrame {
	return InputFrame{
		Buttons: 0,
		MainX:   128, MainY: 128,
		CX: 128, CY: 128,
		TrigL: 0, TrigR: 0,
	}
}
