package dynamo

// DynamoDB attribute and index names for the users table.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	attrUserID      = "user_id"
	attrWalletID    = "wallet_id"
	attrNonce       = "nonce"
	attrExpiryTime  = "expiry_time"
	attrOwnerUserID = "owner_user_id"

	indexWalletID = "wallet_id-index"

	// walletGuardPrefix keys the item that reserves a wallet address. It lives
	// in the users table so the reservation and the user commit atomically.
	walletGuardPrefix = "wallet#"
)
