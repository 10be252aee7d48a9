package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// ASCII art banner for the chaos proxy.
var bannerArt = []string{
	"░█████╗░██╗░░██╗░█████╗░░█████╗░░██████╗",
	"██╔══██╗██║░░██║██╔══██╗██╔══██╗██╔════╝",
	"██║░░╚═╝███████║███████║██║░░██║╚█████╗░",
	"██║░░██╗██╔══██║██╔══██║██║░░██║░╚═══██╗",
	"╚█████╔╝██║░░██║██║░░██║╚█████╔╝██████╔╝",
	"░╚════╝░╚═╝░░╚═╝╚═╝░░╚═╝░╚════╝░╚═════╝░",
}

var bannerEmitted = false

// FormatBannerArt returns the ASCII banner, colored when the terminal
// supports it.
func FormatBannerArt() string {
	if !IsRich() {
		return strings.Join(bannerArt, "\n")
	}

	accent := color.New(color.FgHiRed, color.Bold)
	accentDim := color.New(color.FgRed)

	var lines []string
	for _, line := range bannerArt {
		var colored strings.Builder
		for _, ch := range line {
			switch ch {
			case '█', '╗', '╔', '╚', '╝', '║':
				colored.WriteString(accent.Sprint(string(ch)))
			case '░', '═':
				colored.WriteString(accentDim.Sprint(string(ch)))
			default:
				colored.WriteString(Muted("%c", ch))
			}
		}
		lines = append(lines, colored.String())
	}
	return strings.Join(lines, "\n")
}

// FormatBannerLine returns the version/tagline line.
func FormatBannerLine(version, tagline string) string {
	title := "◆ CHAOS PROXY"
	if IsRich() {
		return fmt.Sprintf("%s %s %s %s",
			Heading(title),
			Info(version),
			Muted("—"),
			AccentDim(tagline))
	}
	return fmt.Sprintf("%s %s — %s", title, version, tagline)
}

// EmitBanner displays the banner once per process, skipping non-TTY output
// and machine-readable invocations.
func EmitBanner(version, tagline string) {
	if bannerEmitted || !isTTY() {
		return
	}
	for _, arg := range os.Args {
		if arg == "--json" || arg == "--version" || arg == "-v" {
			return
		}
	}

	fmt.Println()
	fmt.Println(FormatBannerArt())
	fmt.Println()
	fmt.Println(FormatBannerLine(version, tagline))
	fmt.Println()
	bannerEmitted = true
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
