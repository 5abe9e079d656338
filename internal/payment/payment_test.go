package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckoutSignatureKnownVector(t *testing.T) {
	sig := CheckoutSignature("secret", "order_1", "pay_1")
	assert.Equal(t, "52115a0d3400de9e86aade1f1b6eba9e8974604f4e267a9e9a16633a4c8dd2cb", sig)
}

func TestVerifyCheckout(t *testing.T) {
	sig := CheckoutSignature("secret", "order_1", "pay_1")

	assert.True(t, VerifyCheckout("secret", "order_1", "pay_1", sig))
	assert.False(t, VerifyCheckout("other", "order_1", "pay_1", sig))
	assert.False(t, VerifyCheckout("secret", "order_2", "pay_1", sig))
	assert.False(t, VerifyCheckout("secret", "order_1", "pay_1", flipLastBit(sig)))
	assert.False(t, VerifyCheckout("secret", "order_1", "pay_1", ""))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign("hook", body)

	assert.True(t, VerifyWebhook("hook", body, sig))
	assert.False(t, VerifyWebhook("secret", body, sig))
	assert.False(t, VerifyWebhook("hook", append(body, ' '), sig))
	assert.False(t, VerifyWebhook("hook", body, ""))
}

func TestVerifyRequiresExactSignatureBytes(t *testing.T) {
	sig := CheckoutSignature("secret", "order_1", "pay_1")

	assert.False(t, VerifyCheckout("secret", "order_1", "pay_1", strings.ToUpper(sig)), "hex case matters")
	assert.False(t, VerifyCheckout("secret", "order_1", "pay_1", sig[:len(sig)-2]), "truncated")
	assert.False(t, VerifyCheckout("secret", "order_1", "pay_1", sig+"00"), "extended")

	body := []byte(`{"event":"payment.captured"}`)
	hook := Sign("hook", body)
	assert.False(t, VerifyWebhook("hook", body, " "+hook))
	assert.False(t, VerifyWebhook("hook", body, strings.ToUpper(hook)))
}

func TestOrderFromBody(t *testing.T) {
	o := orderFromBody(map[string]interface{}{
		"id":       "order_9",
		"amount":   float64(50000),
		"currency": "INR",
		"receipt":  "appt-1",
		"status":   "created",
		"notes":    map[string]interface{}{"userId": "u1", "n": 3.0},
	})

	assert.Equal(t, "order_9", o.ID)
	assert.Equal(t, int64(50000), o.Amount)
	assert.Equal(t, "INR", o.Currency)
	assert.Equal(t, "appt-1", o.Receipt)
	assert.Equal(t, map[string]string{"userId": "u1"}, o.Notes)
}

func TestOrderFromBodyMissingReceipt(t *testing.T) {
	o := orderFromBody(map[string]interface{}{"id": "order_9", "receipt": nil})
	assert.Empty(t, o.Receipt)
}

// flipLastBit flips the low bit of the final hex digit.
func flipLastBit(s string) string {
	b := []byte(s)
	last := b[len(b)-1]
	var v byte
	if last >= 'a' {
		v = last - 'a' + 10
	} else {
		v = last - '0'
	}
	v ^= 1
	if v >= 10 {
		b[len(b)-1] = 'a' + v - 10
	} else {
		b[len(b)-1] = '0' + v
	}
	return string(b)
}
