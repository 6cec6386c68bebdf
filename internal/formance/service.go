package formance

import (
	"context"
	"errors"
	"fmt"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/settlement"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Journal must satisfy settlement.Journal.
var _ settlement.Journal = (*Journal)(nil)

// rupeeAsset is INR in paise, Formance UMN notation.
const rupeeAsset = "INR/2"

// numscriptCredit moves reward money from the world into a user's account.
// Metadata is set inside the script so the transaction is self-describing.
const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $mobile
  string $kind
  string $reference
  string $balance_after
}

send [$asset $amount] (
  source = @world
  destination = @users:$mobile
)

set_tx_meta("event_type", $kind)
set_tx_meta("reference", $reference)
set_tx_meta("balance_after", $balance_after)
`

// Journal mirrors reward credits into a Formance Stack ledger. The local
// SQLite ledger stays authoritative; the mirror is best-effort.
type Journal struct {
	client *v3.Formance
	ledger string

	// post submits one transaction; replaced in tests.
	post func(ctx context.Context, req operations.V2CreateTransactionRequest) error
}

// NewJournal connects to the stack and creates the ledger if it doesn't already exist.
func NewJournal(ctx context.Context, cfg models.FormanceConfig) (*Journal, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "sms-rupee-rewards"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	j := &Journal{client: client, ledger: cfg.LedgerName}
	j.post = func(ctx context.Context, req operations.V2CreateTransactionRequest) error {
		_, err := client.Ledger.V2.CreateTransaction(ctx, req)
		return err
	}
	if err := j.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance journal initialized", zap.String("ledger", cfg.LedgerName))
	return j, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (j *Journal) ensureLedger(ctx context.Context) error {
	_, err := j.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: j.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "sms-rupee",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", j.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", j.ledger))
	return nil
}

// RecordCredit posts one credited ledger entry. The entry reference is the
// transaction reference, so a replay is a no-op.
func (j *Journal) RecordCredit(ctx context.Context, entry models.LedgerEntry) error {
	postTx, err := creditTransaction(entry)
	if err != nil {
		return err
	}

	err = j.post(ctx, operations.V2CreateTransactionRequest{
		Ledger:            j.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Credit already journaled", zap.String("reference", entry.Reference))
			return nil
		}
		return fmt.Errorf("error journaling credit %s: %w", entry.Reference, err)
	}

	zap.L().Info("Credit journaled in Formance",
		zap.String("mobile", entry.Mobile),
		zap.String("kind", entry.Kind),
		zap.String("amount", entry.Amount.StringFixed(2)),
		zap.String("reference", entry.Reference))
	return nil
}

func creditTransaction(entry models.LedgerEntry) (shared.V2PostTransaction, error) {
	if !entry.Amount.IsPositive() {
		return shared.V2PostTransaction{}, fmt.Errorf("journal credit amount must be positive, got %s", entry.Amount)
	}
	if entry.Reference == "" || entry.Mobile == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("journal credit requires mobile and reference")
	}

	reference := entry.Reference
	postTx := shared.V2PostTransaction{
		Reference: &reference,
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptCredit,
			Vars: map[string]string{
				"asset":         rupeeAsset,
				"amount":        toPaise(entry.Amount),
				"mobile":        entry.Mobile,
				"kind":          entry.Kind,
				"reference":     entry.Reference,
				"balance_after": entry.BalanceAfter.StringFixed(2),
			},
		},
	}
	if !entry.CreatedAt.IsZero() {
		ts := entry.CreatedAt
		postTx.Timestamp = &ts
	}
	return postTx, nil
}

// toPaise renders a rupee amount in the asset's smallest unit.
func toPaise(amount decimal.Decimal) string {
	return amount.Shift(2).Round(0).String()
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}
