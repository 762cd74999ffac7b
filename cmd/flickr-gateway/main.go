// ABOUTME: Entry point for flickr-gateway, a dynamic Flickr API client and HTTP gateway
// ABOUTME: Dispatches subcommands for serving, setup, authorization and ad-hoc method calls

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/flickr-gateway/internal/config"
	"github.com/2389/flickr-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __ _ _      _                           _
 / _| (_) ___| | ___ __       __ _  __ _| |_ _____      ____ _ _   _
| |_| | |/ __| |/ / '__|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
|  _| | | (__|   <| | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_|_|\___|_|\_\_|        \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                             |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: FLICKR_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/flickr-gateway/config.yaml > ~/.config/flickr-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FLICKR_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "flickr-gateway", "config.yaml")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: flickr-gateway <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                      Start the HTTP gateway")
	fmt.Fprintln(w, "  init                       Create a new config file interactively")
	fmt.Fprintln(w, "  auth-url [--perms P]       Print a Flickr authorization URL")
	fmt.Fprintln(w, "  auth-complete FROB         Exchange a frob for a token in a CLI session")
	fmt.Fprintln(w, "  call METHOD [key=value]    Invoke a Flickr method and print the response")
	fmt.Fprintln(w, "  methods [NAME]             List known methods or describe one")
	fmt.Fprintln(w, "  health                     Check gateway health")
	fmt.Fprintln(w, "  version                    Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'flickr-gateway <command> --help' for command flags.")
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run dispatches a subcommand with its remaining arguments.
func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "serve":
		return runServe(ctx, args)
	case "init":
		return runInit(args, os.Stdin, os.Stdout)
	case "auth-url":
		return runAuthURL(ctx, args, os.Stdout)
	case "auth-complete":
		return runAuthComplete(ctx, args, os.Stdout)
	case "call":
		return runCall(ctx, args, os.Stdout)
	case "methods":
		return runMethods(ctx, args, os.Stdout)
	case "health":
		return runHealth(ctx, args)
	case "version", "--version":
		fmt.Printf("flickr-gateway %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// newFlagSet returns a flag set carrying the flags every subcommand accepts.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVarP(configPath, "config", "c", getConfigPath(), "path to the config file")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

// parseFlags parses args and reports whether help was requested and printed.
func parseFlags(flagSet *pflag.FlagSet, args []string, usage string) (bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet, usage)
			return true, nil
		}
		return false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, usage)
		return true, nil
	}
	return false, nil
}

func printHelp(flagSet *pflag.FlagSet, usage string) {
	fmt.Fprintf(os.Stderr, "Usage:\n  flickr-gateway %s %s\n\nFlags:\n", flagSet.Name(), usage)
	flagSet.PrintDefaults()
}

func runServe(ctx context.Context, args []string) error {
	var configPath string
	flagSet := newFlagSet("serve", &configPath)
	if done, err := parseFlags(flagSet, args, "[flags]"); done || err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Flickr:    %s://%s%s\n", cfg.Flickr.Scheme, cfg.Flickr.Hosts["api"], cfg.Flickr.APIService)
	green.Print("    ▶ ")
	fmt.Printf("Discovery: ")
	cyan.Print(cfg.Flickr.Discovery)
	gray.Printf(" (cache: %s, sessions: %s)", cfg.Cache.Adapter, cfg.Session.Adapter)
	fmt.Println()
	if cfg.Server.BaseURL == "" {
		green.Print("    ▶ ")
		yellow.Println("server.base_url is unset; auth callbacks redirect to /")
	}
	fmt.Println()

	logger.Info("starting flickr-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"discovery", cfg.Flickr.Discovery,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context, args []string) error {
	var configPath string
	flagSet := newFlagSet("health", &configPath)
	if done, err := parseFlags(flagSet, args, "[flags]"); done || err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
