package billing

import "crypto/subtle"

// VerifyAsaasAccessToken compares the header token with the configured one.
// An empty configured token never verifies.
func VerifyAsaasAccessToken(headerToken, configuredToken string) bool {
	if configuredToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(headerToken), []byte(configuredToken)) == 1
}
