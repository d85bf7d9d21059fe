package tui

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// browserCommand returns the command that opens link on goos. Only http(s)
// links are opened; explorer URLs come from the config file.
func browserCommand(goos, link string) (string, []string, error) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", nil, fmt.Errorf("not a web link: %q", link)
	}
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", u.String()}, nil
	case "darwin":
		return "open", []string{u.String()}, nil
	}
	return "xdg-open", []string{u.String()}, nil
}

// openTxInExplorer opens a transaction page in the default browser.
func openTxInExplorer(link string) error {
	name, args, err := browserCommand(runtime.GOOS, link)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}
