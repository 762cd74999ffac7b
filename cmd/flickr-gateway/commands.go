// ABOUTME: CLI subcommands that drive the Flickr client directly without the HTTP server
// ABOUTME: Covers config setup, the frob authorization flow, method calls and method listings

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/2389/flickr-gateway/internal/config"
	"github.com/2389/flickr-gateway/internal/flickr"
	"github.com/2389/flickr-gateway/internal/gateway"
)

// defaultCLISession names the session CLI commands authorize and call under.
const defaultCLISession = "cli"

// openFlickr loads the config at path and opens a Flickr client on it.
// Logs go to stderr so stdout stays clean for responses.
func openFlickr(ctx context.Context, path string) (*flickr.Gateway, *config.Config, func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	fl, backends, err := gateway.OpenFlickr(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := backends.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}
	return fl, cfg, closeFn, nil
}

func runAuthURL(ctx context.Context, args []string, out io.Writer) error {
	var configPath, perms, extra string
	flagSet := newFlagSet("auth-url", &configPath)
	flagSet.StringVarP(&perms, "perms", "p", "", "permission level to request: read, write or delete (default from config)")
	flagSet.StringVar(&extra, "extra", "", "opaque value Flickr passes back to the callback")
	if done, err := parseFlags(flagSet, args, "[flags]"); done || err != nil {
		return err
	}

	fl, cfg, closeFn, err := openFlickr(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	if perms == "" {
		perms = cfg.Flickr.Perms
	}
	target, err := fl.BuildAuthURL(perms, extra)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, target)
	return nil
}

func runAuthComplete(ctx context.Context, args []string, out io.Writer) error {
	var configPath, session string
	flagSet := newFlagSet("auth-complete", &configPath)
	flagSet.StringVarP(&session, "session", "s", defaultCLISession, "session to authorize")
	if done, err := parseFlags(flagSet, args, "FROB [flags]"); done || err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("expected exactly one frob, got %d arguments", flagSet.NArg())
	}

	fl, _, closeFn, err := openFlickr(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := fl.RecordFrob(ctx, session, flagSet.Arg(0)); err != nil {
		return err
	}
	authSession, err := fl.CompleteAuth(ctx, session)
	if err != nil {
		return err
	}

	name := ""
	if authSession.User != nil {
		name = authSession.User.Username
		if name == "" {
			name = authSession.User.NSID
		}
	}
	fmt.Fprintf(out, "session %q authorized as %s with %s permission\n", session, name, authSession.PermissionLevel)
	return nil
}

func runCall(ctx context.Context, args []string, out io.Writer) error {
	var configPath, session, format string
	var skipPerms bool
	flagSet := newFlagSet("call", &configPath)
	flagSet.StringVarP(&session, "session", "s", defaultCLISession, "session whose token signs the call")
	flagSet.StringVarP(&format, "format", "f", "", "response format: json, php_serial, xml or raw (default from config)")
	flagSet.BoolVar(&skipPerms, "skip-perms", false, "skip the local permission check")
	if done, err := parseFlags(flagSet, args, "METHOD [key=value ...] [flags]"); done || err != nil {
		return err
	}
	if flagSet.NArg() < 1 {
		return fmt.Errorf("method name is required")
	}

	params, err := parseParams(flagSet.Args()[1:])
	if err != nil {
		return err
	}

	opts := flickr.CallOptions{SessionID: session, SkipPermissionCheck: skipPerms}
	if format != "" {
		f, ok := flickr.ParseFormat(format)
		if !ok {
			return fmt.Errorf("unknown format %q", format)
		}
		opts.Format = f
	}

	fl, _, closeFn, err := openFlickr(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := fl.Invoke(ctx, flagSet.Arg(0), params, opts)
	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

// parseParams turns key=value arguments into method parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

// printResponse writes the response body. php_serial data is printed as JSON.
func printResponse(out io.Writer, resp *flickr.Response) error {
	body := resp.Body
	if resp.Format == flickr.FormatPHP {
		data, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		body = data
	}
	if _, err := out.Write(body); err != nil {
		return err
	}
	if len(body) > 0 && body[len(body)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}

func runMethods(ctx context.Context, args []string, out io.Writer) error {
	var configPath string
	var remote, asJSON bool
	flagSet := newFlagSet("methods", &configPath)
	flagSet.BoolVar(&remote, "remote", false, "ask Flickr for every method it offers")
	flagSet.BoolVar(&asJSON, "json", false, "print a method description as JSON")
	if done, err := parseFlags(flagSet, args, "[NAME] [flags]"); done || err != nil {
		return err
	}

	fl, _, closeFn, err := openFlickr(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	if flagSet.NArg() > 0 {
		def, err := fl.Registry().Resolve(ctx, flagSet.Arg(0))
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(gateway.NewMethodResponse(def))
		}
		printMethod(out, def)
		return nil
	}

	var names []string
	if remote {
		names, err = fl.ListMethods(ctx)
		if err != nil {
			return err
		}
	} else {
		names = fl.Registry().List(ctx)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func printMethod(out io.Writer, def *flickr.MethodDefinition) {
	fmt.Fprintf(out, "%s\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(out, "  %s\n", def.Description)
	}
	fmt.Fprintf(out, "  verb:       %s\n", def.Verb)
	fmt.Fprintf(out, "  permission: %s\n", def.RequiredPermission)
	fmt.Fprintf(out, "  login:      %t\n", def.RequiresLogin)
	fmt.Fprintf(out, "  signed:     %t\n", def.RequiresSigning)
	if len(def.RequiredParams) > 0 {
		fmt.Fprintf(out, "  required:   %s\n", strings.Join(def.RequiredParams, ", "))
	}
	if len(def.OptionalParams) > 0 {
		fmt.Fprintf(out, "  optional:   %s\n", strings.Join(def.OptionalParams, ", "))
	}
}

// initAnswers holds what runInit collected.
type initAnswers struct {
	HTTPAddr      string
	BaseURL       string
	APIKey        string
	APISecret     string
	Perms         string
	Discovery     string
	Adapter       string
	DatabasePath  string
	RedisAddr     string
	SessionSecret string
	LogLevel      string
	LogFormat     string
}

func runInit(args []string, in io.Reader, out io.Writer) error {
	var configPath string
	flagSet := newFlagSet("init", &configPath)
	if done, err := parseFlags(flagSet, args, "[flags]"); done || err != nil {
		return err
	}

	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "flickr-gateway configuration setup")
	fmt.Fprintln(out, "==================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", configPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var a initAnswers
	a.SessionSecret = secret

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", config.DefaultHTTPAddr)
	a.BaseURL = prompt(reader, out, "External base URL (for auth callbacks)", "")

	fmt.Fprintln(out, "\n--- Flickr Configuration ---")
	a.APIKey = prompt(reader, out, "API key", "${FLICKR_API_KEY}")
	a.APISecret = prompt(reader, out, "API secret", "${FLICKR_API_SECRET}")
	a.Perms = prompt(reader, out, "Default permission (read/write/delete)", config.DefaultPerms)
	a.Discovery = prompt(reader, out, "Method discovery (eager/lazy/disabled)", config.DefaultDiscovery)

	fmt.Fprintln(out, "\n--- Storage Configuration ---")
	a.Adapter = prompt(reader, out, "Storage adapter (memory/sqlite/redis)", config.DefaultAdapter)
	switch strings.ToLower(a.Adapter) {
	case "sqlite":
		a.DatabasePath = prompt(reader, out, "SQLite database path", config.DefaultDatabasePath())
	case "redis":
		a.RedisAddr = prompt(reader, out, "Redis address", "localhost:6379")
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", config.DefaultLogLevel)
	a.LogFormat = prompt(reader, out, "Log format (text/json)", config.DefaultLogFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the session secret and possibly the API secret.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DatabasePath != "" {
		dataDir := filepath.Dir(a.DatabasePath)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		fmt.Fprintf(out, "\nData directory: %s\n", dataDir)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  flickr-gateway serve")
	return nil
}

// renderConfig writes the YAML config for a.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# flickr-gateway configuration\n")
	cfg.WriteString("# Generated by flickr-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	if a.BaseURL != "" {
		fmt.Fprintf(&cfg, "  base_url: %q\n", a.BaseURL)
	}
	cfg.WriteString("\n")

	cfg.WriteString("flickr:\n")
	fmt.Fprintf(&cfg, "  api_key: %q\n", a.APIKey)
	fmt.Fprintf(&cfg, "  api_secret: %q\n", a.APISecret)
	fmt.Fprintf(&cfg, "  perms: %q\n", a.Perms)
	fmt.Fprintf(&cfg, "  discovery: %q\n", a.Discovery)
	fmt.Fprintf(&cfg, "  format: %q\n", config.DefaultFormat)
	cfg.WriteString("\n")

	cfg.WriteString("cache:\n")
	fmt.Fprintf(&cfg, "  adapter: %q\n", a.Adapter)
	cfg.WriteString("  ttl: \"24h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("session:\n")
	fmt.Fprintf(&cfg, "  adapter: %q\n", a.Adapter)
	fmt.Fprintf(&cfg, "  secret: %q\n", a.SessionSecret)
	cfg.WriteString("  max_age: \"720h\"\n")
	cfg.WriteString("\n")

	if a.DatabasePath != "" {
		cfg.WriteString("database:\n")
		fmt.Fprintf(&cfg, "  path: %q\n", a.DatabasePath)
		cfg.WriteString("\n")
	}
	if a.RedisAddr != "" {
		cfg.WriteString("redis:\n")
		fmt.Fprintf(&cfg, "  addr: %q\n", a.RedisAddr)
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)
	return cfg.String()
}

// generateSecret returns 32 random bytes, base64 encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
