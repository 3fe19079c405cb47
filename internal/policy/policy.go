// Package policy enforces the --enable-commands allowlist.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

// CheckCommandAllowed permits commandPath when the allowlist is empty or an
// entry names the command or one of its parent groups. The root command name
// is ignored on both sides.
func CheckCommandAllowed(allowlist []string, root, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := strip(root, fields(commandPath))
	for _, allowed := range allowlist {
		entry := strip(root, fields(allowed))
		if len(entry) > 0 && hasPrefix(path, entry) {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command "+strings.Join(path, " ")+" blocked by --enable-commands policy")
}

func fields(v string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(v)))
}

func strip(root string, parts []string) []string {
	if len(parts) > 0 && parts[0] == strings.ToLower(root) {
		return parts[1:]
	}
	return parts
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
