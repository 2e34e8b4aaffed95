package cmd

import (
	"fmt"
	"net/url"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/superzylo/vendo/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("vendo doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults + env apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.Groq.Model)
	if cfg.Provider.Groq.APIKey == "" {
		fmt.Printf("    %-12s MISSING (set VENDO_GROQ_API_KEY)\n", "API key:")
	} else {
		fmt.Printf("    %-12s configured\n", "API key:")
	}

	fmt.Println()
	fmt.Println("  Channel:")
	fmt.Printf("    %-12s %s", "Bridge:", cfg.Channel.WhatsApp.BridgeURL)
	if u, err := url.Parse(cfg.Channel.WhatsApp.BridgeURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		fmt.Println(" (INVALID, expected ws:// or wss://)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  Pipeline:")
	fmt.Printf("    %-12s %v\n", "Debounce:", cfg.Pipeline.Debounce())
	fmt.Printf("    %-12s %v\n", "Rate win:", cfg.Pipeline.RateWindow())
	fmt.Printf("    %-12s %v\n", "Dedupe:", cfg.Pipeline.DedupeTTL())
	fmt.Printf("    %-12s %d\n", "Workers:", cfg.Pipeline.Workers)

	if cfg.Telemetry.Endpoint != "" {
		fmt.Println()
		fmt.Printf("  Tracing:  %s\n", cfg.Telemetry.Endpoint)
	}

	fmt.Println()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Result:   NOT READY (%s)\n", err)
		return
	}
	fmt.Println("  Result:   OK")
}
