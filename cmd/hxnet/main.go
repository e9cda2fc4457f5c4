// Command hxnet serves the hxnet demo site.
//
// Usage:
//
//	hxnet serve --port 8080 --static ./public
//	hxnet config
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
