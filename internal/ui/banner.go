// Package ui prints colored console output for the relay server and console client.
package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Version is printed in the banner.
const Version = "v1.0.0"

// PrintBanner displays the startup banner.
func PrintBanner(subtitle string) {
	cyan := color.New(color.FgCyan, color.Bold)
	magenta := color.New(color.FgMagenta, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Println()
	cyan.Println("╔══════════════════════════════════════════════╗")
	cyan.Print("║  ")
	magenta.Print("HPN ASK RELAY")
	dim.Print("  │  ")
	yellow.Printf("%-16s", subtitle)
	dim.Print("  │  ")
	fmt.Print(Version)
	cyan.Println(" ║")
	cyan.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()
}
