package txsigner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erc7824/tokenkit/pkg/log"
)

const tracerName = "github.com/erc7824/tokenkit/pkg/txsigner"

// Kind names a signer backend.
type Kind string

const (
	KindLocal  Kind = "local"
	KindLedger Kind = "ledger"
)

// Signer is the capability set shared by every backend. Callers hold a
// Signer and never need to know which backend is behind it.
type Signer interface {
	// Address returns the account the signer signs for.
	Address(ctx context.Context) (common.Address, error)
	// SignTransaction fills unset fields of req from the node and returns
	// the signed, encoded transaction.
	SignTransaction(ctx context.Context, req TransactionRequest) (*SignedTransaction, error)
	// SendTransaction signs req and broadcasts it.
	SendTransaction(ctx context.Context, req TransactionRequest) (*PendingTransaction, error)
	// Provider returns the node connection the signer resolves fields with.
	Provider() ChainClient
	// Close releases the device session and any connection the signer owns.
	Close() error
	Kind() Kind
}

// Options carries the collaborators shared by both backends. Zero values
// fall back to a no-op logger, no metrics and the global tracer provider.
type Options struct {
	Logger  log.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
	// DeviceTimeout bounds each hardware command. Zero leaves it to the
	// caller's context.
	DeviceTimeout time.Duration
}

func (o Options) withDefaults(kind Kind) Options {
	if o.Logger == nil {
		o.Logger = log.NewNoopLogger()
	}
	o.Logger = o.Logger.WithName("txsigner").WithKV("kind", string(kind))
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return o
}

// startOperation opens a span for op and returns a context carrying a logger
// tagged with a fresh op_id.
func startOperation(ctx context.Context, opts Options, kind Kind, op string) (context.Context, trace.Span, log.Logger) {
	ctx, span := opts.Tracer.Start(ctx, "txsigner."+op, trace.WithAttributes(
		attribute.String("signer.kind", string(kind)),
	))
	ctx = log.SetContextLogger(ctx, opts.Logger.WithKV("op_id", uuid.NewString()))
	return ctx, span, log.FromContext(ctx)
}

func finishOperation(span trace.Span, opts Options, kind Kind, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	opts.Metrics.observeOperation(kind, op, err)
	span.End()
}

// sendSigned broadcasts a transaction signed by either backend.
func sendSigned(ctx context.Context, client ChainClient, lg log.Logger, from common.Address, signed *SignedTransaction) (*PendingTransaction, error) {
	tx, err := signed.Transaction()
	if err != nil {
		return nil, err
	}
	if err := client.SendTransaction(ctx, tx); err != nil {
		lg.Warn("failed to broadcast transaction", "hash", signed.Hash, "error", err)
		return nil, asConnectionError(err)
	}
	lg.Info("transaction broadcast", "hash", signed.Hash, "nonce", tx.Nonce(), "chainId", tx.ChainId())

	return &PendingTransaction{
		Hash:    tx.Hash(),
		From:    from,
		Tx:      tx,
		Signed:  signed,
		backend: client,
	}, nil
}
