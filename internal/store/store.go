package store

import (
	"context"
	"errors"
	"time"

	"sms-rupee-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("account already exists")
	ErrDeviceBound            = errors.New("device already bound to another account")
	ErrDuplicateEntry         = errors.New("duplicate ledger entry")
	ErrClaimLost              = errors.New("claim lost or record already sent")
	ErrRecordNotFound         = errors.New("inventory record not found")
	ErrNoSpins                = errors.New("no spins available")
	ErrAlreadyCheckedIn       = errors.New("already checked in today")
	ErrPendingWithdrawal      = errors.New("pending withdrawal already exists")
	ErrWithdrawalNotFound     = errors.New("withdrawal request not found")
	ErrWithdrawalNotPending   = errors.New("withdrawal request is not pending")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrAdminNotFound          = errors.New("admin credential not found")
)

// ClaimParams identifies who is claiming and for how long.
type ClaimParams struct {
	Claimant string
	Slot     int
	Lease    time.Duration
	Now      time.Time
}

// CloseOutParams marks a claimed record as sent.
type CloseOutParams struct {
	RecordId string
	ClaimId  string
	SentBy   string
	SimSlot  int
	SentAt   time.Time
}

// CreateAccountParams contains the fields set once at sign-up.
type CreateAccountParams struct {
	Mobile         string
	PasswordHash   string
	ReferrerMobile string
	DeviceId       string
	Spins          int
}

// CreditParams describes one atomic balance increment and its audit entry.
// Reference must be unique across the ledger; a repeat is rejected with ErrDuplicateEntry.
type CreditParams struct {
	Mobile    string
	Kind      string
	Amount    decimal.Decimal
	Reference string
}

// WithdrawalParams snapshots the observed balance for the compare-and-set debit.
type WithdrawalParams struct {
	Mobile          string
	ExpectedBalance decimal.Decimal
	BankDetails     models.BankDetails
	RequestedAt     time.Time
}

// LedgerStore defines the contract that every backend must satisfy.
type LedgerStore interface {
	// --- Inventory ---
	AddInventory(ctx context.Context, recipient, body string) (*models.InventoryRecord, error)
	GetInventoryRecord(ctx context.Context, id string) (*models.InventoryRecord, error)
	CountUnsent(ctx context.Context) (int, error)
	ClaimNextUnsent(ctx context.Context, params ClaimParams) (*models.Claim, error)
	ReleaseClaim(ctx context.Context, recordId, claimId string) error
	CloseOut(ctx context.Context, params CloseOutParams) error
	ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error)

	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccount(ctx context.Context, mobile string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	BindDevice(ctx context.Context, mobile, deviceId string) error
	FindAccountByDevice(ctx context.Context, deviceId string) (*models.Account, error)
	SaveBankDetails(ctx context.Context, mobile string, details models.BankDetails) error
	AddSpins(ctx context.Context, mobile string, delta int) error

	// --- Balances ---
	CreditBalance(ctx context.Context, params CreditParams) (*models.LedgerEntry, error)
	CheckIn(ctx context.Context, mobile, day string, at time.Time, reward decimal.Decimal) (*models.Account, error)
	Spin(ctx context.Context, mobile, reference string, won decimal.Decimal) (*models.Account, error)
	GetLedgerEntries(ctx context.Context, mobile string, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, mobile string) error

	// --- Withdrawals ---
	CreateWithdrawal(ctx context.Context, params WithdrawalParams) (*models.WithdrawalRequest, error)
	HasPendingWithdrawal(ctx context.Context, mobile string) (bool, error)
	ListWithdrawals(ctx context.Context, status string) ([]models.WithdrawalRequest, error)
	SetWithdrawalStatus(ctx context.Context, id, status string, processedAt time.Time) (*models.WithdrawalRequest, error)

	// --- Admin ---
	UpsertAdmin(ctx context.Context, username, passwordHash string) error
	GetAdminHash(ctx context.Context, username string) (string, error)

	// --- Change feed ---
	WatchAccount(ctx context.Context, mobile string) (<-chan models.Account, error)
	WatchUnsentCount(ctx context.Context) (<-chan int, error)

	// --- Lifecycle ---
	HealthCheck(ctx context.Context) error
	Close()
}
