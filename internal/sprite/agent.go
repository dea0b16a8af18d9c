package sprite

import (
	"path/filepath"
	"strings"
)

// Home is the base directory for ralph data on a Sprite. /home/sprite is not
// writable inside the Firecracker VM, so everything lives under /var/local.
const Home = "/var/local/ralph"

// WorkspaceDir is where the repository is cloned on the Sprite.
var WorkspaceDir = filepath.Join(Home, "workspace")

// GitConfigPath is the git config file used on the Sprite.
var GitConfigPath = filepath.Join(Home, ".gitconfig")

// ShellScript runs script in a login shell with HOME pointed at Home so the
// agent finds its settings and installed tooling.
func ShellScript(script string) []string {
	return []string{"bash", "-lc", "export HOME=" + Home + " GIT_CONFIG_GLOBAL=" + GitConfigPath + " && " + script}
}

// ShellCommand is ShellScript for an argument vector, quoting each argument.
func ShellCommand(args []string) []string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = ShellQuote(a)
	}
	return ShellScript(strings.Join(quoted, " "))
}

// ShellQuote single-quotes s for bash when it contains anything beyond a
// conservative set of safe characters.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@,+%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// AuthenticatedURL embeds token into an https GitHub URL so git can clone
// without a credential helper. Non-https URLs are returned unchanged.
func AuthenticatedURL(repoURL, token string) string {
	if token == "" || !strings.HasPrefix(repoURL, "https://") {
		return repoURL
	}
	return "https://x-access-token:" + token + "@" + strings.TrimPrefix(repoURL, "https://")
}
