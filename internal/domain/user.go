package domain

import "time"

// User is the wallet identity record. Items expire through the table's native
// TTL on expiry_time; the attribute is absent once TTL is disabled.
type User struct {
	UserID      string    `json:"userId" dynamodbav:"user_id"`
	WalletID    string    `json:"walletId" dynamodbav:"wallet_id"`
	Nonce       string    `json:"-" dynamodbav:"nonce"`
	Verified    bool      `json:"verified" dynamodbav:"verified"`
	Admin       bool      `json:"admin" dynamodbav:"admin"`
	CreatedTime time.Time `json:"createdTime" dynamodbav:"created_time"`
	LastLogin   time.Time `json:"lastLogin" dynamodbav:"last_login"`
	ExpiryTime  *int64    `json:"expiryTime,omitempty" dynamodbav:"expiry_time,omitempty"`
}

// CreateUserRequest covers both first registration and proof of ownership.
type CreateUserRequest struct {
	WalletID  string `json:"walletId" validate:"required,eth_addr"`
	Verify    bool   `json:"verify"`
	Signature string `json:"signature" validate:"required_if=Verify true"`
}

type LoginRequest struct {
	WalletID  string `json:"walletId" validate:"required,eth_addr"`
	Signature string `json:"signature" validate:"required"`
}

type NonceRequest struct {
	WalletID string `validate:"required,eth_addr"`
	Purpose  string `validate:"required,oneof=login sign"`
}

// DynamoDB attribute names used in partial update maps.
const (
	FieldNonce      = "nonce"
	FieldVerified   = "verified"
	FieldLastLogin  = "last_login"
	FieldExpiryTime = "expiry_time"
)
