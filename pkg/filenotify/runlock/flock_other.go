//go:build !unix

package runlock

import "os"

// Advisory locking is not available; runs are not serialized.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
