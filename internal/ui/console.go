package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	successBadge = color.New(color.BgGreen, color.FgBlack, color.Bold)
	warningBadge = color.New(color.FgYellow, color.Bold)
	errorBadge   = color.New(color.BgRed, color.FgWhite, color.Bold)
	infoBadge    = color.New(color.FgCyan, color.Bold)
	debugBadge   = color.New(color.FgMagenta)

	successText = color.New(color.FgGreen, color.Bold)
	warningText = color.New(color.FgYellow)
	errorText   = color.New(color.FgRed)
	infoText    = color.New(color.FgCyan)
	mutedText   = color.New(color.FgHiBlack)
	accentText  = color.New(color.FgMagenta, color.Bold)
	neonBlue    = color.New(color.FgHiCyan, color.Bold)

	methodPOST = color.New(color.BgHiMagenta, color.FgBlack, color.Bold)
	methodGET  = color.New(color.BgHiCyan, color.FgBlack, color.Bold)
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// PrintRequest prints one colored line per served request.
// Format: 15:04:05 POST /v1/ask 200 12ms fallback
func PrintRequest(method, path string, status int, latency time.Duration, kind string) {
	mutedText.Printf("%s ", time.Now().Format("15:04:05"))

	printMethodBadge(method)
	fmt.Print(" ")

	fmt.Printf("%-24s ", truncatePath(path, 24))

	printStatusBadge(status)
	fmt.Print(" ")

	printLatency(latency)

	if kind != "" {
		fmt.Print(" ")
		printKind(kind)
	}

	fmt.Println()
}

func printMethodBadge(method string) {
	switch strings.TrimSpace(method) {
	case "POST":
		methodPOST.Printf(" %s ", method)
	case "GET":
		methodGET.Printf(" %s ", method)
	default:
		debugBadge.Printf(" %s ", method)
	}
}

func printStatusBadge(status int) {
	switch {
	case status >= 200 && status < 300:
		successBadge.Printf(" %d ", status)
	case status >= 300 && status < 400:
		infoBadge.Printf(" %d ", status)
	case status >= 400 && status < 500:
		warningBadge.Printf(" %d ", status)
	default:
		errorBadge.Printf(" %d ", status)
	}
}

// printLatency prints latency with color gradient.
// Green: < 1s, Yellow: < 5s, Red: >= 5s
func printLatency(latency time.Duration) {
	ms := latency.Milliseconds()
	latencyStr := fmt.Sprintf("%5dms", ms)

	switch {
	case latency < time.Second:
		successText.Print(latencyStr)
	case latency < 5*time.Second:
		warningText.Print(latencyStr)
	default:
		errorText.Print(latencyStr)
	}
}

// printKind colors a result kind: primary green, fallback yellow, everything else red.
func printKind(kind string) {
	switch kind {
	case "primary":
		successText.Print(kind)
	case "fallback":
		warningText.Print(kind)
	default:
		errorText.Print(kind)
	}
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return path[:maxLen-3] + "..."
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSOLE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// PrintReply prints the relay's answer tagged with its result kind.
func PrintReply(kind, text string) {
	fmt.Print("[")
	printKind(kind)
	fmt.Print("] ")
	fmt.Println(text)
}

// PrintFetched reports a downloaded image.
func PrintFetched(url, uid string) {
	infoBadge.Print("[IMAGE]")
	fmt.Print(" ")
	mutedText.Print(url)
	infoText.Print(" → ")
	accentText.Println(uid)
}

// PrintWarning prints a non-fatal problem.
func PrintWarning(msg string) {
	warningBadge.Print("[WARN]")
	fmt.Print(" ")
	warningText.Println(msg)
}

// ══════════════════════════════════════════════════════════════════════════════
// STARTUP MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// PrintStartupInfo prints the listen address, key count, retry policy and endpoints.
func PrintStartupInfo(addr string, activeKeys, attempts int, delay time.Duration) {
	infoBadge.Print("[RELAY]")
	fmt.Print(" Server starting on ")
	neonBlue.Printf("http://%s\n", addr)

	infoBadge.Print("[RELAY]")
	fmt.Print(" Primary keys: ")
	if activeKeys > 0 {
		successText.Printf("%d", activeKeys)
	} else {
		errorText.Print("0 (every ask will fall back)")
	}
	fmt.Print(" | Retry: ")
	accentText.Printf("%d x %s\n", attempts, delay)

	fmt.Println()
	printEndpoints()
}

func printEndpoints() {
	endpoints := []struct{ method, path, desc string }{
		{"POST", "/v1/ask", "Ask with retry and fallback"},
		{"POST", "/v1/images", "Download an image, returns its UID"},
		{"POST", "/v1/chat/completions", "Chat completion (OpenAI-compatible)"},
		{"GET", "/health", "Health check"},
	}

	mutedText.Println("  ┌──────────────────────────────────────────────────────────────┐")
	for _, e := range endpoints {
		mutedText.Print("  │ ")
		printMethodBadge(fmt.Sprintf("%-4s", e.method))
		fmt.Printf(" %-22s", e.path)
		mutedText.Printf(" %-35s", e.desc)
		mutedText.Println("│")
	}
	mutedText.Println("  └──────────────────────────────────────────────────────────────┘")
	fmt.Println()
}

// PrintShutdown prints a styled shutdown message.
func PrintShutdown() {
	fmt.Println()
	warningBadge.Print("[SHUTDOWN]")
	warningText.Println(" Graceful shutdown initiated...")
}

// PrintGoodbye prints a styled goodbye message.
func PrintGoodbye() {
	successBadge.Print(" OK ")
	fmt.Print(" ")
	successText.Println("Stopped. Goodbye!")
}
