package main

import (
	"fmt"
	"os"

	"go.uber.org/multierr"

	"github.com/example/go-blingfire/internal/native"
)

func main() {
	err := NewRootCmd().Execute()
	err = multierr.Append(err, native.Shutdown())

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
