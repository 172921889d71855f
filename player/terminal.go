package player

import (
	"os"

	"golang.org/x/sys/unix"
)

// GetTerminalSize returns terminal dimensions (cols, rows, widthPx, heightPx)
func GetTerminalSize() (cols, rows, widthPx, heightPx int, err error) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return int(ws.Col), int(ws.Row), int(ws.Xpixel), int(ws.Ypixel), nil
}

// VideoBox returns the pixel area available for video when reservedRows
// text rows are kept free, or zeros when the terminal does not report pixel
// sizes.
func VideoBox(reservedRows int) (width, height int) {
	cols, rows, termW, termH, err := GetTerminalSize()
	if err != nil || cols == 0 || rows == 0 || termW == 0 || termH == 0 {
		return 0, 0
	}
	cellH := termH / rows
	return termW, max(termH-reservedRows*cellH, cellH)
}

// PlaceRenderer sizes r to the terminal and centers a video of the given
// pixel dimensions.
func PlaceRenderer(r *KittyRenderer, videoWidth, videoHeight int) {
	cols, rows, termW, termH, err := GetTerminalSize()
	if err != nil || cols == 0 || rows == 0 {
		return
	}
	r.SetTerminalSize(cols, rows, termW, termH)
	r.CenterVideo(videoWidth, videoHeight)
}
