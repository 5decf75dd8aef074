//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package blockdev

import "os"

// No advisory locking on this platform; callers must serialize writers.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
