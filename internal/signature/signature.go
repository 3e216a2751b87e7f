// Package signature computes and checks the HMAC-SHA256 digests Razorpay
// attaches to payment confirmations and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 digest of message under secret.
func Sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest of message under secret and compares it
// against candidate in constant time. A plain string equality would leak
// how many leading bytes matched through timing.
func Verify(message []byte, secret, candidate string) bool {
	expected := Sign(message, secret)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// PaymentMessage builds the byte sequence Razorpay signs for client-side
// payment confirmations: the gateway order id and payment id joined by "|".
func PaymentMessage(gatewayOrderID, paymentID string) []byte {
	return []byte(gatewayOrderID + "|" + paymentID)
}
