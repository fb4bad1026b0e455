package dualmind

import "strings"

// denyPatterns are the static deny rules used when no reasoner is attached.
// They name irreversible or injection-shaped operations; a match means the
// proposal never gets autonomous approval.
var denyPatterns = []string{
	// Code execution primitives
	"eval(",
	"exec(",
	"os.system",
	"subprocess.",
	"child_process",

	// Destructive filesystem operations
	"rm -rf /",
	"rm -rf ~",
	"rm -fr /",
	"dd if=/dev/zero",
	"mkfs.",
	"> /dev/sda",
	"chmod -r 777 /",
	":(){ :|:& };:",

	// Destructive database operations
	"drop table",
	"drop database",
	"truncate table",
	"delete from",

	// Credential and environment exfiltration
	"/proc/self/environ",
	"printenv",
	"~/.ssh/id_rsa",
	"~/.aws/credentials",

	// Known injection phrases
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now unrestricted",
}

// matchDenyList returns the first matching deny pattern, or "".
func matchDenyList(proposal string) string {
	lower := strings.ToLower(proposal)
	for _, p := range denyPatterns {
		if strings.Contains(lower, p) {
			return p
		}
	}
	if isPipeToShell(lower) {
		return "pipe-to-shell"
	}
	return ""
}

// isPipeToShell catches download-and-execute shapes like "curl ... | sh"
// regardless of spacing.
func isPipeToShell(lower string) bool {
	pipe := strings.Index(lower, "|")
	if pipe < 0 {
		return false
	}
	before := lower[:pipe]
	after := lower[pipe+1:]
	if !strings.Contains(before, "curl") && !strings.Contains(before, "wget") {
		return false
	}
	after = strings.TrimSpace(after)
	for _, shell := range []string{"sh", "bash", "zsh"} {
		if after == shell || strings.HasPrefix(after, shell+" ") {
			return true
		}
	}
	return false
}
