// Sizescope reports where disk space goes.
package main

import "sizescope/internal/cli"

func main() {
	cli.Execute()
}
