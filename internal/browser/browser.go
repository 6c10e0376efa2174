// Package browser opens the viewer URL in a fullscreen private window.
// Private mode matters for an unattended installation: no session restore
// banners, no leftover tabs from the last opening night.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open launches a browser at url. preferred picks the browser family on
// Windows ("chrome" or "edge"); other platforms try a fixed list. The first
// launcher that starts wins. Failure is not fatal — the operator can open
// the URL by hand — so the error is advisory.
func Open(url, preferred string) error {
	switch runtime.GOOS {
	case "darwin":
		return openDarwin(url)
	case "windows":
		return openWindows(url, preferred)
	default:
		return openLinux(url)
	}
}

func openDarwin(url string) error {
	// AppleScript is the only way to ask Chrome for an incognito window.
	script := fmt.Sprintf(`tell application "Google Chrome"
	activate
	make new window with properties {mode:"incognito"}
	set URL of active tab of front window to %q
end tell`, url)
	if err := exec.Command("osascript", "-e", script).Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

func openWindows(url, preferred string) error {
	var args []string
	switch preferred {
	case "edge":
		args = []string{"cmd", "/c", "start", "msedge", "--inprivate", "--start-fullscreen", url}
	default:
		args = []string{"cmd", "/c", "start", "chrome", "--incognito", "--start-fullscreen", url}
	}
	if err := exec.Command(args[0], args[1:]...).Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

func openLinux(url string) error {
	candidates := [][]string{
		{"google-chrome", "--incognito", "--start-fullscreen", url},
		{"chromium", "--incognito", "--start-fullscreen", url},
		{"firefox", "-private-window", url},
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c[0]); err != nil {
			continue
		}
		if err := exec.Command(c[0], c[1:]...).Start(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("open browser: no usable browser found, open %s manually", url)
}
