// Command garagesync lists and watches garage back office resources through
// the caching list coordinators.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
