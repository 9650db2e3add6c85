package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
)

// tableStyle picks box drawing for terminals and plain ASCII for pipes.
func tableStyle(w io.Writer) table.Style {
	if isTerminal(w) {
		return table.StyleRounded
	}
	return table.StyleDefault
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
