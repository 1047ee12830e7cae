package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/erc7824/tokenkit/pkg/journal"
	"github.com/erc7824/tokenkit/pkg/log"
	"github.com/erc7824/tokenkit/pkg/sign"
	"github.com/erc7824/tokenkit/pkg/txsigner"
)

const (
	defaultMinBalance = "0.001"
	ledgerHint        = "Please connect your Ledger, unlock it, and open the Ethereum app."
)

var errInsufficientBalance = errors.New("insufficient balance")

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: tokenkit <command> [arguments]

Commands:
  address                     show the signer address, network and balance
  check-wallet [min-eth]      fail unless the balance is at least min-eth (default 0.001)
  send-eth <to> <amount-eth>  send ether and wait for confirmation
  generate-wallet             print a new random private key and its address
  history [limit]             list transactions sent from this machine
  export-history [dir]        write the transaction journal to a CSV file

Signer settings come from SIGNER_TYPE, RPC_URL, PRIVATE_KEY and
DERIVATION_PATH, or from the YAML file named by SIGNER_CONFIG_FILE.`)
}

type cli struct {
	cfg    *Config
	logger log.Logger
	out    io.Writer
}

func newCLI(cfg *Config, logger log.Logger, out io.Writer) *cli {
	return &cli{cfg: cfg, logger: logger, out: out}
}

func (c *cli) newSigner() (txsigner.Signer, error) {
	cfg := c.cfg.Signer
	cfg.Logger = c.logger
	if cfg.Type == "" {
		return nil, fmt.Errorf("%w: SIGNER_TYPE not set", txsigner.ErrConfiguration)
	}

	fmt.Fprintf(c.out, "Using %s signer...\n", cfg.Type)
	if cfg.Type == txsigner.KindLedger {
		fmt.Fprintln(c.out, ledgerHint)
	}
	return txsigner.New(cfg)
}

// explain adds operator guidance to device errors.
func (c *cli) explain(err error) error {
	switch {
	case errors.Is(err, txsigner.ErrUserRejected):
		return fmt.Errorf("%w (the transaction was declined on the device)", err)
	case errors.Is(err, txsigner.ErrDeviceLocked), errors.Is(err, txsigner.ErrDeviceTimeout):
		return fmt.Errorf("%w (%s)", err, ledgerHint)
	}
	return err
}

func (c *cli) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	return t
}

func (c *cli) runAddress(ctx context.Context) error {
	signer, err := c.newSigner()
	if err != nil {
		return err
	}
	defer closeSigner(c.logger, signer)

	address, err := signer.Address(ctx)
	if err != nil {
		return c.explain(err)
	}
	network, err := txsigner.LookupNetwork(ctx, signer.Provider())
	if err != nil {
		return err
	}
	balance, err := signer.Provider().BalanceAt(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	t := c.newTable()
	t.AppendRow(table.Row{"Address", address.Hex()})
	t.AppendRow(table.Row{"Network", fmt.Sprintf("%s (chainId: %s)", network.Name, network.ChainID)})
	t.AppendRow(table.Row{"Balance", balance.String() + " wei"})
	t.AppendRow(table.Row{"", formatEther(balance) + " ETH"})
	t.Render()
	return nil
}

func (c *cli) runCheckWallet(ctx context.Context, args []string) error {
	minArg := defaultMinBalance
	if len(args) > 0 {
		minArg = args[0]
	}
	minBalance, err := parseEther(minArg)
	if err != nil {
		return err
	}

	signer, err := c.newSigner()
	if err != nil {
		return err
	}
	defer closeSigner(c.logger, signer)

	address, err := signer.Address(ctx)
	if err != nil {
		return c.explain(err)
	}
	balance, err := signer.Provider().BalanceAt(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	fmt.Fprintf(c.out, "Address: %s\n", address.Hex())
	fmt.Fprintf(c.out, "Balance: %s ETH\n", formatEther(balance))

	if balance.Cmp(minBalance) < 0 {
		return fmt.Errorf("%w: need at least %s ETH", errInsufficientBalance, formatEther(minBalance))
	}
	fmt.Fprintln(c.out, "\nWallet check passed. Sufficient balance.")
	return nil
}

func (c *cli) runSendEth(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: tokenkit send-eth <to-address> <amount-in-eth>")
	}
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid ethereum address %q", args[0])
	}
	to := common.HexToAddress(args[0])
	value, err := parseEther(args[1])
	if err != nil {
		return err
	}

	signer, err := c.newSigner()
	if err != nil {
		return err
	}
	defer closeSigner(c.logger, signer)

	from, err := signer.Address(ctx)
	if err != nil {
		return c.explain(err)
	}
	fmt.Fprintf(c.out, "From: %s\n", from.Hex())
	fmt.Fprintf(c.out, "To: %s\n", to.Hex())
	fmt.Fprintf(c.out, "Amount: %s ETH\n\n", formatEther(value))
	fmt.Fprintln(c.out, "Sending transaction...")

	pending, err := signer.SendTransaction(ctx, txsigner.TransactionRequest{To: &to, Value: value})
	if err != nil {
		return c.explain(err)
	}
	fmt.Fprintln(c.out, "Transaction sent!")
	fmt.Fprintf(c.out, "Hash: %s\n\n", pending.Hash.Hex())

	c.record(ctx, signer.Kind(), pending)

	fmt.Fprintln(c.out, "Waiting for confirmation...")
	receipt, err := pending.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for transaction %s: %w", pending.Hash.Hex(), err)
	}
	fmt.Fprintf(c.out, "Confirmed in block %s\n", receipt.BlockNumber)
	return nil
}

// record adds a sent transaction to the journal. The transaction is already
// on the network, so a journal failure is reported but does not fail the
// command.
func (c *cli) record(ctx context.Context, kind txsigner.Kind, pending *txsigner.PendingTransaction) {
	entry, err := journal.EntryFromPending(kind, pending)
	if err != nil {
		c.logger.Warn("failed to build journal entry", "hash", pending.Hash.Hex(), "error", err)
		return
	}

	store, err := journal.Open(c.cfg.Database, c.logger)
	if err != nil {
		c.logger.Warn("journal unavailable, transaction not recorded", "hash", entry.Hash, "error", err)
		return
	}
	defer store.Close()

	if err := store.Record(ctx, entry); err != nil {
		c.logger.Warn("failed to record transaction", "hash", entry.Hash, "error", err)
	}
}

func (c *cli) runGenerateWallet() error {
	key, err := sign.GenerateEthereumKey()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Address: %s\n", key.Address.Hex())
	fmt.Fprintf(c.out, "Private key: %s\n\n", key.PrivateKey)
	fmt.Fprintln(c.out, "Store the private key securely. Anyone holding it controls the funds.")
	return nil
}

func (c *cli) runHistory(ctx context.Context, args []string) error {
	opts := journal.ListOptions{}
	if len(args) > 0 {
		limit, err := strconv.Atoi(args[0])
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		opts.Limit = limit
	}

	store, err := journal.Open(c.cfg.Database, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, opts)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No transactions recorded.")
		return nil
	}

	t := c.newTable()
	t.AppendHeader(table.Row{"Sent", "Hash", "From", "To", "Nonce", "Chain", "Value (ETH)", "Signer"})
	t.AppendSeparator()
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.CreatedAt.Format(time.RFC3339),
			e.Hash,
			e.From,
			e.To,
			e.Nonce,
			e.ChainID,
			e.ValueEther().String(),
			e.SignerKind,
		})
	}
	t.Render()
	return nil
}

func (c *cli) runExportHistory(ctx context.Context, args []string) error {
	outputDir := "."
	if len(args) > 0 {
		outputDir = args[0]
	}

	store, err := journal.Open(c.cfg.Database, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, journal.ListOptions{Limit: 1000})
	if err != nil {
		return err
	}

	fileName, err := exportToFile(outputDir, entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Exported %d transactions to %s\n", len(entries), fileName)
	return nil
}

func exportToFile(outputDir string, entries []journal.Entry) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", outputDir, err)
	}

	fileName := filepath.Join(outputDir, "tokenkit_journal.csv")
	file, err := os.Create(fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file %s: %w", fileName, err)
	}
	if err := writeCSV(file, entries); err != nil {
		return "", fmt.Errorf("failed to write CSV file %s: %w", fileName, err)
	}
	return fileName, nil
}

// writeCSV exports entries to w and closes it. A close error is reported
// when the write itself succeeded.
func writeCSV(w io.WriteCloser, entries []journal.Entry) error {
	if err := exportCSV(w, entries); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func exportCSV(w io.Writer, entries []journal.Entry) error {
	csvWriter := csv.NewWriter(w)

	header := []string{"Hash", "From", "To", "Nonce", "ChainID", "ValueWei", "Signer", "CreatedAt"}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write header to CSV: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Hash,
			e.From,
			e.To,
			strconv.FormatUint(e.Nonce, 10),
			strconv.FormatUint(e.ChainID, 10),
			e.Value.String(),
			e.SignerKind,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row to CSV: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func closeSigner(logger log.Logger, signer txsigner.Signer) {
	if err := signer.Close(); err != nil {
		logger.Warn("failed to close signer", "error", err)
	}
}
