package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"nftmint/pkg/app"
	"nftmint/pkg/config"
	"nftmint/pkg/models"
	"nftmint/pkg/rpc"
	"nftmint/pkg/server"
	"nftmint/pkg/tui"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	logLevelFlag := flag.String("log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	initFlag := flag.Bool("init", false, "Write a default configuration file and exit")
	restoreFlag := flag.Bool("restore", false, "Restore the most recent configuration backup and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("nftmint version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *initFlag {
		if err := config.SaveConfig(config.Default(), path); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", path)
		os.Exit(0)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Failed to restore backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration restored at %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	levelName := cfg.LogLevel
	if *logLevelFlag != "" {
		levelName = *logLevelFlag
	}
	level, err := parseLogLevel(levelName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		setupLogging(os.Stderr, level)
		report := buildReport(context.Background(), path, cfg)
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			printReport(os.Stdout, report)
		}
		if !reportOK(report) {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Printf("Fix the config file at %s or run with -init.\n", path)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serverFlag {
		setupLogging(os.Stderr, level)
	} else {
		logFile, err := openLogFile()
		if err != nil {
			fmt.Printf("Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = logFile.Close() }()
		setupLogging(logFile, level)
	}

	a := app.New(ctx, cfg)
	defer a.Close()
	if *serverFlag {
		promptPassphrase(a, cfg)
	}
	go a.Run(ctx)

	srv := server.NewServer(a)

	if *serverFlag {
		fmt.Printf("Running in server mode on port %d...\n", *portFlag)
		if err := srv.Start(ctx, *portFlag); err != nil {
			log.Error("Server error", "err", err)
			os.Exit(1)
		}
		return
	}

	go func() {
		if err := srv.Start(ctx, *portFlag); err != nil {
			log.Error("Server error", "err", err)
		}
	}()

	if err := tui.Start(ctx, a, Version); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// promptPassphrase reads the keystore passphrase from the terminal when the
// configured environment variable is empty. The TUI asks for it instead.
func promptPassphrase(a *app.App, cfg config.Config) {
	if cfg.Wallet.Mode != config.WalletModeKeystore || os.Getenv(cfg.Wallet.PasswordEnv) != "" {
		return
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	_, _ = fmt.Fprint(os.Stderr, "Keystore passphrase: ")
	pw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Warn("Passphrase input failed", "err", err)
		return
	}
	a.SetWalletPassword(string(pw))
}

func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return log.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func setupLogging(w io.Writer, level slog.Level) {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, level, useColor)))
}

// openLogFile opens the log next to the default config so the terminal UI
// keeps the screen to itself.
func openLogFile() (*os.File, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(home, config.LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// buildReport validates cfg and probes the chain RPCs, the contract and the
// image gateways.
func buildReport(ctx context.Context, path string, cfg config.Config) models.TestReport {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
	}
	if err := config.Validate(cfg); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		return report
	}

	chain := rpc.ProbeChain(ctx, cfg.Chain)
	report.Chain = &chain

	ok, err := rpc.HasContractCode(ctx, cfg.Chain.RPCURLs, cfg.ContractAddress)
	if err != nil {
		log.Warn("Contract code check failed", "contract", cfg.ContractAddress, "err", err)
	}
	report.ContractCode = ok

	for _, gw := range cfg.Gallery.Gateways {
		res, err := rpc.FetchGatewayLatency(ctx, gw)
		if err != nil {
			log.Debug("Gateway unreachable", "gateway", gw, "err", err)
		}
		report.Gateways = append(report.Gateways, res)
	}
	return report
}

func reportOK(r models.TestReport) bool {
	if !r.ValidStructure || r.Chain == nil || r.Chain.Inconsistent || r.Chain.ObservedChainID == 0 {
		return false
	}
	return r.ContractCode
}

func printReport(w io.Writer, r models.TestReport) {
	fmt.Fprintf(w, "Testing configuration at: %s\n", r.ConfigPath)
	if !r.ValidStructure {
		for _, e := range r.StructureErrors {
			fmt.Fprintf(w, "Error: %s\n", e)
		}
		return
	}

	if c := r.Chain; c != nil {
		fmt.Fprintf(w, "Testing Chain: %s (%d)\n", c.Name, c.ConfigChainID)
		for _, res := range c.RPCs {
			fmt.Fprintf(w, "  RPC: %s ... ", res.URL)
			if res.Status != "ok" {
				fmt.Fprintf(w, "Failed: %s\n", res.Error)
				continue
			}
			fmt.Fprintf(w, "OK (ChainID: %d, %s)", res.ChainID, res.Latency)
			if res.Error != "" {
				fmt.Fprintf(w, " - %s", strings.ToUpper(res.Error))
			} else {
				fmt.Fprint(w, " - Verified")
			}
			fmt.Fprintln(w)
		}
		if c.Inconsistent {
			fmt.Fprintln(w, "\nWARNING: Inconsistent RPCs detected!")
			fmt.Fprintf(w, "The RPCs for %s return conflicting or unexpected Chain IDs.\n", c.Name)
		}
	}

	if r.ContractCode {
		fmt.Fprintln(w, "Contract: deployed")
	} else {
		fmt.Fprintln(w, "Contract: NO CODE at configured address")
	}

	if len(r.Gateways) > 0 {
		fmt.Fprintln(w, "Gateways:")
		for _, gw := range r.Gateways {
			if gw.Status == "ok" {
				fmt.Fprintf(w, "  %s ... OK (%s)\n", gw.URL, gw.Latency)
			} else {
				fmt.Fprintf(w, "  %s ... Failed: %s\n", gw.URL, gw.Error)
			}
		}
	}
}
