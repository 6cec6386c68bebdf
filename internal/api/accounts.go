package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	reasonInvalidMobile     = "Please enter a valid 10-digit mobile number."
	reasonShortPassword     = "Password must be at least 6 characters."
	reasonMissingDevice     = "Device could not be identified."
	reasonAlreadyRegistered = "This mobile number is already registered. Please login."
	reasonDeviceTaken       = "A user is already registered on this device. Only one account per device is allowed."
	reasonInvalidReferral   = "Invalid referral code entered. Continuing without referral link."
	reasonBadCredentials    = "Invalid mobile number or password."
	reasonOtherDevice       = "This account is already linked to another device."
	reasonBadAdmin          = "Invalid admin credentials."
	reasonBankIncomplete    = "Please fill in all bank details."
	reasonAdminCredentials  = "Admin username and a password of at least 6 characters are required."
)

const minPasswordLength = 6

// SignUpParams holds the sign-up form
type SignUpParams struct {
	Mobile       string
	Password     string
	ReferralCode string
	DeviceId     string
}

func validMobile(mobile string) bool {
	if len(mobile) != 10 {
		return false
	}
	for _, c := range mobile {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SignUp creates an account bound to the signing-up device. An unknown referral
// code is not an error: the account is created without a referrer and the
// result carries a warning.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*models.SignUpResult, error) {
	mobile := strings.TrimSpace(params.Mobile)
	code := strings.TrimSpace(params.ReferralCode)
	deviceId := strings.TrimSpace(params.DeviceId)

	if !validMobile(mobile) {
		return nil, policy(reasonInvalidMobile)
	}
	if len(params.Password) < minPasswordLength {
		return nil, policy(reasonShortPassword)
	}
	if deviceId == "" {
		return nil, policy(reasonMissingDevice)
	}

	if _, err := s.store.GetAccount(ctx, mobile); err == nil {
		return nil, policy(reasonAlreadyRegistered)
	} else if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	bound, err := s.store.FindAccountByDevice(ctx, deviceId)
	if err != nil {
		return nil, err
	}
	if bound != nil {
		return nil, policy(reasonDeviceTaken)
	}

	result := &models.SignUpResult{}
	referrer := ""
	if code != "" {
		if code == mobile {
			result.Warning = reasonInvalidReferral
		} else if r, err := s.store.GetAccount(ctx, code); err == nil {
			referrer = r.Mobile
		} else if errors.Is(err, store.ErrAccountNotFound) {
			result.Warning = reasonInvalidReferral
		} else {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.store.CreateAccount(ctx, store.CreateAccountParams{
		Mobile:         mobile,
		PasswordHash:   string(hash),
		ReferrerMobile: referrer,
		DeviceId:       deviceId,
		Spins:          s.rewards.SignupSpins,
	})
	switch {
	case errors.Is(err, store.ErrDeviceBound):
		return nil, policyWrap(err, reasonDeviceTaken)
	case errors.Is(err, store.ErrAccountExists):
		return nil, policyWrap(err, reasonAlreadyRegistered)
	case err != nil:
		return nil, err
	}

	if referrer != "" && s.rewards.ReferralSignupSpins > 0 {
		if err := s.store.AddSpins(ctx, referrer, s.rewards.ReferralSignupSpins); err != nil {
			zap.L().Warn("Could not grant referral spins",
				zap.String("referrer", referrer),
				zap.Error(err))
		}
	}

	result.Account = account
	return result, nil
}

// Login checks the password and binds the device on first use.
func (s *Service) Login(ctx context.Context, mobile, password, deviceId string) (*models.Account, error) {
	mobile = strings.TrimSpace(mobile)
	deviceId = strings.TrimSpace(deviceId)

	account, err := s.store.GetAccount(ctx, mobile)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, policyWrap(err, reasonBadCredentials)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, policy(reasonBadCredentials)
	}
	if deviceId == "" {
		return nil, policy(reasonMissingDevice)
	}
	if account.DeviceId != "" && account.DeviceId != deviceId {
		return nil, policy(reasonOtherDevice)
	}

	if account.DeviceId == "" {
		if err := s.store.BindDevice(ctx, mobile, deviceId); err != nil {
			if errors.Is(err, store.ErrDeviceBound) {
				return nil, policyWrap(err, reasonDeviceTaken)
			}
			return nil, err
		}
		zap.L().Info("Device bound on first login",
			zap.String("mobile", mobile),
			zap.String("device_id", deviceId))
		account.DeviceId = deviceId
	}
	return account, nil
}

// AuthorizeDevice returns the account if it is bound to deviceId.
func (s *Service) AuthorizeDevice(ctx context.Context, mobile, deviceId string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if deviceId == "" || account.DeviceId != deviceId {
		return nil, policy(reasonOtherDevice)
	}
	return account, nil
}

func (s *Service) AdminLogin(ctx context.Context, username, password string) error {
	hash, err := s.store.GetAdminHash(ctx, username)
	if errors.Is(err, store.ErrAdminNotFound) {
		return policyWrap(err, reasonBadAdmin)
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return policy(reasonBadAdmin)
	}
	return nil
}

// SetAdminPassword creates or replaces the admin credential.
func (s *Service) SetAdminPassword(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || len(password) < minPasswordLength {
		return policy(reasonAdminCredentials)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	return s.store.UpsertAdmin(ctx, username, string(hash))
}

func (s *Service) SaveBankDetails(ctx context.Context, mobile string, details models.BankDetails) error {
	details = models.BankDetails{
		HolderName:    strings.TrimSpace(details.HolderName),
		AccountNumber: strings.TrimSpace(details.AccountNumber),
		IFSC:          strings.ToUpper(strings.TrimSpace(details.IFSC)),
	}
	if !details.Complete() {
		return policy(reasonBankIncomplete)
	}
	return s.store.SaveBankDetails(ctx, mobile, details)
}
