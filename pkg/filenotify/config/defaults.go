// Package config provides configuration management for filenotify.
package config

import "time"

// Default configuration values.
const (
	// DefaultRoot is the tree scanned when none is given.
	DefaultRoot = "."

	// DefaultManifestName is the per-directory record file name.
	DefaultManifestName = ".MANIFEST"

	// DefaultRecipientsName is the per-directory recipient list file name.
	DefaultRecipientsName = "mailaddresses.txt"

	// DefaultSMTPPort leaves the port to the TLS mode (465 implicit, 25 none,
	// 587 otherwise).
	DefaultSMTPPort = 0

	// DefaultSMTPTimeout bounds a single SMTP conversation.
	DefaultSMTPTimeout = 30 * time.Second

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 90

	// DefaultOutput is the report format.
	DefaultOutput = "plain"

	// DefaultLogMaxSize triggers log rotation.
	DefaultLogMaxSize = "10MB"
)

// DefaultExclusions are names never scanned.
var DefaultExclusions = []string{
	"*.swp",
	"*~",
}
