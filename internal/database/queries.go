/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	// Inventory queries
	queryInsertInventory = `
		INSERT INTO sms_inventory (id, recipient_number, message_body, is_sent, added_at)
		VALUES (?, ?, ?, 0, ?)`

	queryGetInventoryRecord = `
		SELECT id, recipient_number, message_body, is_sent, sent_by, sim_slot, sent_at, added_at,
		       claim_id, claimed_by, lease_expires_at
		FROM sms_inventory
		WHERE id = ?`

	queryCountUnsent = `
		SELECT COUNT(*) FROM sms_inventory WHERE is_sent = 0`

	// Claim-and-mark in one statement. The outer guard repeats the inner
	// predicate so a row claimed between selection and update is not taken.
	queryClaimNextUnsent = `
		UPDATE sms_inventory
		SET claim_id = ?, claimed_by = ?, claim_slot = ?, lease_expires_at = ?
		WHERE id = (
			SELECT id FROM sms_inventory
			WHERE is_sent = 0 AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
			LIMIT 1
		)
		AND is_sent = 0 AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
		RETURNING id, recipient_number, message_body`

	queryReleaseClaim = `
		UPDATE sms_inventory
		SET claim_id = NULL, claimed_by = NULL, claim_slot = NULL, lease_expires_at = NULL
		WHERE id = ? AND claim_id = ? AND is_sent = 0`

	queryCloseOut = `
		UPDATE sms_inventory
		SET is_sent = 1, sent_by = ?, sim_slot = ?, sent_at = ?,
		    claim_id = NULL, claimed_by = NULL, claim_slot = NULL, lease_expires_at = NULL
		WHERE id = ? AND is_sent = 0 AND claim_id = ?`

	queryReleaseExpiredClaims = `
		UPDATE sms_inventory
		SET claim_id = NULL, claimed_by = NULL, claim_slot = NULL, lease_expires_at = NULL
		WHERE is_sent = 0 AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`

	// Account queries
	accountColumns = `
		mobile, password_hash, balance_minor, referral_code, COALESCE(referrer_mobile, ''),
		COALESCE(device_id, ''), spins_available, last_checkin_at, last_checkin_day,
		COALESCE(bank_holder_name, ''), COALESCE(bank_account_number, ''), COALESCE(bank_ifsc, ''),
		created_at`

	queryInsertAccount = `
		INSERT INTO accounts (mobile, password_hash, balance_minor, referral_code, referrer_mobile,
		                      device_id, spins_available, created_at, updated_at)
		VALUES (?, ?, 0, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`

	queryGetAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = ?`

	queryGetAccountByDevice = `SELECT ` + accountColumns + ` FROM accounts WHERE device_id = ?`

	queryListAccounts = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at`

	queryBindDevice = `
		UPDATE accounts SET device_id = ?, updated_at = ?
		WHERE mobile = ? AND (device_id IS NULL OR device_id = ?)`

	querySaveBankDetails = `
		UPDATE accounts
		SET bank_holder_name = ?, bank_account_number = ?, bank_ifsc = ?, updated_at = ?
		WHERE mobile = ?`

	queryAddSpins = `
		UPDATE accounts SET spins_available = spins_available + ?, updated_at = ?
		WHERE mobile = ? AND spins_available + ? >= 0`

	queryAccountExists = `
		SELECT 1 FROM accounts WHERE mobile = ?`

	// Balance queries
	queryIncrementBalance = `
		UPDATE accounts SET balance_minor = balance_minor + ?, updated_at = ?
		WHERE mobile = ?
		RETURNING balance_minor`

	queryCheckIn = `
		UPDATE accounts
		SET spins_available = spins_available + 1, last_checkin_at = ?, last_checkin_day = ?, updated_at = ?
		WHERE mobile = ? AND last_checkin_day <> ?`

	queryConsumeSpin = `
		UPDATE accounts SET spins_available = spins_available - 1, updated_at = ?
		WHERE mobile = ? AND spins_available > 0`

	queryDebitExactBalance = `
		UPDATE accounts SET balance_minor = 0, updated_at = ?
		WHERE mobile = ? AND balance_minor = ?`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, mobile, kind, amount_minor, balance_after_minor, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetLedgerEntries = `
		SELECT id, mobile, kind, amount_minor, balance_after_minor, reference, created_at
		FROM ledger_entries
		WHERE mobile = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	queryGetBalance = `
		SELECT balance_minor FROM accounts WHERE mobile = ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount_minor), 0) FROM ledger_entries WHERE mobile = ?`

	// Withdrawal queries
	withdrawalColumns = `
		id, user_mobile, amount_minor, bank_holder_name, bank_account_number, bank_ifsc,
		status, requested_at, processed_at`

	queryInsertWithdrawal = `
		INSERT INTO withdrawal_requests (id, user_mobile, amount_minor, bank_holder_name,
		                                 bank_account_number, bank_ifsc, status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`

	queryHasPendingWithdrawal = `
		SELECT COUNT(*) FROM withdrawal_requests WHERE user_mobile = ? AND status = 'pending'`

	queryListWithdrawals = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
		WHERE (? = '' OR status = ?)
		ORDER BY requested_at DESC`

	queryGetWithdrawal = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = ?`

	querySetWithdrawalStatus = `
		UPDATE withdrawal_requests SET status = ?, processed_at = ?
		WHERE id = ? AND status = 'pending'`

	// Admin queries
	queryUpsertAdmin = `
		INSERT INTO admin_credentials (username, password_hash, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at`

	queryGetAdminHash = `
		SELECT password_hash FROM admin_credentials WHERE username = ?`
)
