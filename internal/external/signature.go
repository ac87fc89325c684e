package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

// SignParams computes the settlement token: SHA-256 over the parameter values
// concatenated in alphabetical key order, with the shared secret mixed in
// under the "Password" key. Both sides of the push channel use the same
// scheme.
func SignParams(params map[string]string, secret string) string {
	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed["Password"] = secret

	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tokenString string
	for _, key := range keys {
		tokenString += signed[key]
	}

	hash := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(hash[:])
}

// VerifyNotification checks the token on an inbound settlement notification.
// Comparison is constant-time.
func VerifyNotification(n *models.SettlementNotification, secret string) error {
	expected := SignParams(notificationParams(n), secret)
	if !hmac.Equal([]byte(expected), []byte(n.Token)) {
		return apperrors.ErrSignatureInvalid
	}
	return nil
}

func notificationParams(n *models.SettlementNotification) map[string]string {
	return map[string]string{
		"TransactionId": n.TransactionID,
		"Status":        n.Status,
		"Amount":        strconv.FormatInt(n.Amount, 10),
		"Currency":      n.Currency,
	}
}
