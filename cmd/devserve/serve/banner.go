package servecmder

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/papercomputeco/devserve/pkg/config"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#41B883"))
	labelStyle = lipgloss.NewStyle().Bold(true)
	urlStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7")).Underline(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderBanner describes where the server listens and what it proxies and
// aliases. Styling is only applied when styled is set.
func renderBanner(cfg *config.Config, listenAddr string, elapsed time.Duration, styled bool) string {
	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := fmt.Sprint(cfg.Server.Port)
	if _, p, err := net.SplitHostPort(listenAddr); err == nil {
		port = p
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s %s\n\n",
		style(titleStyle, "devserve"),
		style(dimStyle, fmt.Sprintf("ready in %d ms", elapsed.Milliseconds())),
	)
	fmt.Fprintf(&b, "  ➜  %s %s\n", style(labelStyle, "Local: "), style(urlStyle, fmt.Sprintf("http://%s:%s/", host, port)))

	if len(cfg.Plugins) > 0 {
		fmt.Fprintf(&b, "  ➜  %s %s\n", style(labelStyle, "Plugins:"), strings.Join(cfg.Plugins, ", "))
	}

	for _, key := range sortedKeys(cfg.Server.Proxy) {
		fmt.Fprintf(&b, "  ➜  %s %s → %s\n", style(labelStyle, "Proxy: "), key, cfg.Server.Proxy[key].Target)
	}

	if aliases, err := cfg.ResolveAliases(); err == nil {
		for _, key := range sortedKeys(aliases) {
			fmt.Fprintf(&b, "  ➜  %s %s → %s\n", style(labelStyle, "Alias: "), key, style(dimStyle, aliases[key]))
		}
	}

	b.WriteString("\n")
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
