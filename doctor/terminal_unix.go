//go:build !windows

package doctor

import "os/exec"

// resetTerminal restores cooked mode after audio backends or an interrupted
// prompt leave the tty in a raw state.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
