// Package banner prints the startup banner, copied in shape from the
// teacher's internal/banner/banner.go.
package banner

import (
	"fmt"
	"strings"
)

const logo = `
======================================================================
  ___  _    _ _     _
 / _ \| |__| | |   (_)_ __   ___
| | | | / _' | |   | | '_ \ / _ \
| |_| | \__,_| |___| | | | |  __/
 \___/|_|    |_____|_|_| |_|\___|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine is a single aligned "label : value" row under the logo.
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner with the service name and configuration.
func Print(serviceName string, config []ConfigLine) {
	fmt.Println(logo)
	fmt.Printf("%s\n", serviceName)

	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}
	for _, c := range config {
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Printf("  %s%s : %s\n", c.Label, padding, c.Value)
	}

	fmt.Println()
	fmt.Println("Line ready.")
	fmt.Println(footer)
	fmt.Println()
}
