package banner

import "fmt"

const logo = `
======================================================================
 ____                        _
|  _ \  ___   ___  _ __ _ __ | |__   ___  _ __   ___
| | | |/ _ \ / _ \| '__| '_ \| '_ \ / _ \| '_ \ / _ \
| |_| | (_) | (_) | |  | |_) | | | | (_) | | | |  __/
|____/ \___/ \___/|_|  | .__/|_| |_|\___/|_| |_|\___|
                       |_|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine is a single label/value pair shown under the banner.
type ConfigLine struct {
	Label string
	Value string
}

// Print writes the startup banner with the client name and its effective
// configuration, labels aligned.
func Print(name string, config []ConfigLine) {
	fmt.Println(logo)
	fmt.Println(name)

	width := 0
	for _, c := range config {
		if len(c.Label) > width {
			width = len(c.Label)
		}
	}
	for _, c := range config {
		fmt.Printf("  %-*s : %s\n", width, c.Label, c.Value)
	}

	fmt.Println()
	fmt.Println("Ready.")
	fmt.Println(footer)
	fmt.Println()
}
