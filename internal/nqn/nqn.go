// Package nqn validates NVMe Qualified Names used in Connect commands
// and subsystem registry lookups (spec.md §3, §4.3, §6).
package nqn

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the NVMe Base Specification's limit on NQN length, in
// bytes (NVM Express 1.3 spec).
const MaxLength = 223

// DiscoveryNQN is the well-known NQN a host connects to in order to
// reach the Discovery subsystem.
const DiscoveryNQN = "nqn.2014-08.org.nvmexpress.discovery"

// pattern matches nqn.name[:identifier], where name is lower-case letters,
// digits, dots and hyphens. The conventional nqn.YYYY-MM.reversed-domain
// form is accepted, but the date part is not required (nqn.test.sub1 is
// valid). The identifier suffix is optional (the discovery NQN above has none).
var pattern = regexp.MustCompile(`^nqn\.[a-z0-9.-]+(:[a-zA-Z0-9._:-]+)?$`)

// dangerousChars blocks characters that have no place in an NQN and
// would be dangerous if an NQN were ever interpolated into a shell
// command or log format string downstream.
var dangerousChars = []string{
	";", "|", "&", "$", "`", "(", ")", "<", ">", "\n", "\r", "\t", "\"", "'", "\\", "*", "?", "[", "]", " ",
}

// Validate checks an NQN for format compliance and for characters that
// would be unsafe to carry into logs or external command lines.
func Validate(n string) error {
	if n == "" {
		return fmt.Errorf("NQN cannot be empty")
	}

	for _, ch := range dangerousChars {
		if strings.Contains(n, ch) {
			return fmt.Errorf("NQN contains disallowed character %q: %s", ch, n)
		}
	}

	if len(n) > MaxLength {
		return fmt.Errorf("NQN too long: %d bytes (max %d)", len(n), MaxLength)
	}

	if n == DiscoveryNQN {
		return nil
	}

	if !pattern.MatchString(n) {
		return fmt.Errorf("invalid NQN format: %s (expected nqn.name[:identifier])", n)
	}

	return nil
}
