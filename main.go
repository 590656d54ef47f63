package main

import (
	"fmt"
	"os"

	"github.com/bsdinis/jiftool/internal/cmd"
	"github.com/bsdinis/jiftool/internal/output"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(output.ExitCodeFor(err))
}
