// Command modvcs resolves every module a Go project depends on to a
// verified upstream commit and emits the two include files a downstream
// BitBake-style recipe generator consumes.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
