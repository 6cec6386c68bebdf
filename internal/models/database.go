package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal request statuses
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
)

// Ledger entry kinds
const (
	EntrySmsReward          = "sms_reward"
	EntryReferralCommission = "referral_commission"
	EntryCheckin            = "checkin"
	EntrySpin               = "spin"
	EntryWithdrawal         = "withdrawal"
)

// InventoryRecord is one queued SMS waiting to be sent from a device
type InventoryRecord struct {
	Id              string     `db:"id" json:"id"`
	RecipientNumber string     `db:"recipient_number" json:"recipientNumber"`
	MessageBody     string     `db:"message_body" json:"messageBody"`
	IsSent          bool       `db:"is_sent" json:"isSent"`
	SentBy          string     `db:"sent_by" json:"sentBy,omitempty"`
	SimSlot         *int       `db:"sim_slot" json:"simSlot,omitempty"`
	SentAt          *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	AddedAt         time.Time  `db:"added_at" json:"addedAt"`
	ClaimId         string     `db:"claim_id" json:"-"`
	ClaimedBy       string     `db:"claimed_by" json:"-"`
	LeaseExpiresAt  *time.Time `db:"lease_expires_at" json:"-"`
}

// Claim is an exclusive, time-bounded hold on one unsent record
type Claim struct {
	RecordId        string
	ClaimId         string
	RecipientNumber string
	MessageBody     string
	Claimant        string
	Slot            int
	LeaseExpiresAt  time.Time
}

// BankDetails is the payout destination captured from the user
type BankDetails struct {
	HolderName    string `json:"holderName"`
	AccountNumber string `json:"accountNumber"`
	IFSC          string `json:"ifsc"`
}

// Complete reports whether every field is filled in
func (b BankDetails) Complete() bool {
	return b.HolderName != "" && b.AccountNumber != "" && b.IFSC != ""
}

// Account is a user's balance and referral state, keyed by mobile number
type Account struct {
	Mobile         string          `db:"mobile" json:"mobileNumber"`
	PasswordHash   string          `db:"password_hash" json:"-"`
	Balance        decimal.Decimal `db:"balance_minor" json:"balance"`
	ReferralCode   string          `db:"referral_code" json:"referralCode"`
	ReferrerMobile string          `db:"referrer_mobile" json:"referrerMobile,omitempty"`
	DeviceId       string          `db:"device_id" json:"deviceId,omitempty"`
	SpinsAvailable int             `db:"spins_available" json:"spinsAvailable"`
	LastCheckinAt  *time.Time      `db:"last_checkin_at" json:"lastCheckinDate,omitempty"`
	LastCheckinDay string          `db:"last_checkin_day" json:"-"`
	BankDetails    *BankDetails    `json:"bankDetails,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// WithdrawalRequest is a payout ask with a snapshot of balance and bank details
type WithdrawalRequest struct {
	Id          string          `db:"id" json:"id"`
	UserMobile  string          `db:"user_mobile" json:"userMobileNumber"`
	Amount      decimal.Decimal `db:"amount_minor" json:"amount"`
	BankDetails BankDetails     `json:"bankDetails"`
	Status      string          `db:"status" json:"status"`
	RequestedAt time.Time       `db:"requested_at" json:"requestedAt"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processedAt,omitempty"`
}

// LedgerEntry is the immutable audit row written with every balance change
type LedgerEntry struct {
	Id           string          `db:"id" json:"id"`
	Mobile       string          `db:"mobile" json:"mobileNumber"`
	Kind         string          `db:"kind" json:"kind"`
	Amount       decimal.Decimal `db:"amount_minor" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after_minor" json:"balanceAfter"`
	Reference    string          `db:"reference" json:"reference"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}
