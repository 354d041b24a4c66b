// peachy-go drives an audio-modulated laser resin printer: it reads layers
// from a YAML file, waits for the drip-fed z-axis and streams each motion
// through the laser and audio pipeline.
//
// Usage:
//
//	peachy-go print  --config printer.cfg --layers part.yaml [--dry-run] [--no-sublayers]
//	peachy-go verify --config printer.cfg --layers part.yaml
//	peachy-go serve  --config printer.cfg --layers part.yaml
//	peachy-go ports
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
