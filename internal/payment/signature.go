package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of message under secret.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckoutSignature is what the gateway hands the client after checkout:
// HMAC over "orderId|paymentId" with the API key secret.
func CheckoutSignature(keySecret, orderID, paymentID string) string {
	return Sign(keySecret, []byte(orderID+"|"+paymentID))
}

// VerifyCheckout compares the recomputed checkout signature with the
// supplied one byte for byte in constant time.
func VerifyCheckout(keySecret, orderID, paymentID, signature string) bool {
	return hmac.Equal([]byte(CheckoutSignature(keySecret, orderID, paymentID)), []byte(signature))
}

// VerifyWebhook checks the signature header of a webhook against the raw body.
func VerifyWebhook(webhookSecret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(webhookSecret, body)), []byte(signature))
}
