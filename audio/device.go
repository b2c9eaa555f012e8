package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrSelectCanceled is returned when the picker is dismissed with Ctrl+C or Esc.
var ErrSelectCanceled = errors.New("device selection canceled")

// SelectDevice asks which microphone to practice with. The cursor starts on
// the device named preferred, or on the first input that is not a Bluetooth
// headset. A single device is returned without prompting.
func SelectDevice(ctx Context, preferred string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no capture devices found")
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	return newPicker(devices, preferred).run(os.Stdin, os.Stdout)
}

type picker struct {
	devices []DeviceInfo
	cursor  int
}

func newPicker(devices []DeviceInfo, preferred string) *picker {
	p := &picker{devices: devices}
	for i, d := range devices {
		if preferred != "" && d.Name == preferred {
			p.cursor = i
			return p
		}
	}
	for i, d := range devices {
		if !IsBluetooth(d.Name) {
			p.cursor = i
			return p
		}
	}
	return p
}

type pickAction int

const (
	pickMove pickAction = iota
	pickChoose
	pickCancel
)

// key applies one read from the terminal, which may hold several keys.
func (p *picker) key(in []byte) pickAction {
	for i := 0; i < len(in); i++ {
		switch b := in[i]; {
		case b == '\r' || b == '\n':
			return pickChoose
		case b == 3:
			return pickCancel
		case b == 0x1b && i+2 < len(in) && in[i+1] == '[':
			switch in[i+2] {
			case 'A':
				p.move(-1)
			case 'B':
				p.move(1)
			}
			i += 2
		case b == 0x1b:
			return pickCancel
		case b == 'k':
			p.move(-1)
		case b == 'j':
			p.move(1)
		}
	}
	return pickMove
}

func (p *picker) move(d int) {
	p.cursor = min(max(p.cursor+d, 0), len(p.devices)-1)
}

func (p *picker) lines() int {
	n := len(p.devices) + 2
	if p.anyBluetooth() {
		n += 2
	}
	return n
}

func (p *picker) anyBluetooth() bool {
	for _, d := range p.devices {
		if IsBluetooth(d.Name) {
			return true
		}
	}
	return false
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm, Esc to cancel):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, tag)
		}
	}
	if p.anyBluetooth() {
		fmt.Fprint(w, "\r\n  \x1b[33mBluetooth headsets record at reduced quality, which lowers pronunciation scores.\x1b[0m\r\n")
	}
}

func (p *picker) run(in io.Reader, out io.Writer) (*DeviceInfo, error) {
	p.render(out)
	buf := make([]byte, 16)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			switch p.key(buf[:n]) {
			case pickChoose:
				fmt.Fprint(out, "\r\n")
				return &p.devices[p.cursor], nil
			case pickCancel:
				fmt.Fprint(out, "\r\n")
				return nil, ErrSelectCanceled
			}
			fmt.Fprintf(out, "\x1b[%dA", p.lines())
			p.render(out)
		}
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
	}
}
