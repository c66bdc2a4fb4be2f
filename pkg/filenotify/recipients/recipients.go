// Package recipients reads the per-directory list of notification addresses.
//
// The list is plain text with one address per line. Lines containing '#'
// are comments and lines without '@' are ignored; nothing else is validated.
package recipients

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoRecipients is returned when a list yields no usable address.
var ErrNoRecipients = errors.New("no recipients")

// Load reads the recipient list at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recipient list: %w", err)
	}
	defer f.Close()

	addrs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoRecipients)
	}
	return addrs, nil
}

// Parse returns the addresses in r in order, without duplicates.
func Parse(r io.Reader) ([]string, error) {
	var addrs []string
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.Contains(line, "#") || !strings.Contains(line, "@") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		addrs = append(addrs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading recipient list: %w", err)
	}

	return addrs, nil
}
