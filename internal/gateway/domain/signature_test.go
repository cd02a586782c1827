package domain

import "testing"

func TestVerifyPaymentSignature(t *testing.T) {
	const secret = "key_secret"
	sig := SignPayment(secret, "order_1", "pay_1")

	if !VerifyPaymentSignature(secret, "order_1", "pay_1", sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyPaymentSignature(secret, "order_1", "pay_2", sig) {
		t.Fatalf("signature accepted for a different payment")
	}
	if VerifyPaymentSignature("other_secret", "order_1", "pay_1", sig) {
		t.Fatalf("signature accepted under a different secret")
	}
	if VerifyPaymentSignature(secret, "order_1", "pay_1", sig+"00") {
		t.Fatalf("tampered signature accepted")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	const secret = "webhook_secret"
	body := []byte(`{"id":"evt_1","event":"payout.processed"}`)
	sig := SignWebhook(secret, body)

	if !VerifyWebhookSignature(secret, body, sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyWebhookSignature(secret, []byte(`{"id":"evt_2"}`), sig) {
		t.Fatalf("signature accepted for a different body")
	}
	if VerifyWebhookSignature(secret, body, "") {
		t.Fatalf("empty signature accepted")
	}
}
