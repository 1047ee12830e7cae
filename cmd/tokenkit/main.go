package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erc7824/tokenkit/pkg/log"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	config, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logger := log.NewZapLogger(config.Log).WithName("tokenkit")
	if !config.dotEnvLoaded {
		logger.Debug(".env file not found", "dir", config.dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = runCli(ctx, newCLI(config, logger, os.Stdout), os.Args[1], os.Args[2:])
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runCli(ctx context.Context, c *cli, name string, args []string) error {
	switch name {
	case "address":
		return c.runAddress(ctx)
	case "check-wallet":
		return c.runCheckWallet(ctx, args)
	case "send-eth":
		return c.runSendEth(ctx, args)
	case "generate-wallet":
		return c.runGenerateWallet()
	case "history":
		return c.runHistory(ctx, args)
	case "export-history":
		return c.runExportHistory(ctx, args)
	case "help", "-h", "--help":
		printUsage(c.out)
		return nil
	default:
		printUsage(c.out)
		return fmt.Errorf("unknown command %q", name)
	}
}
