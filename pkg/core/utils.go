package core

// MaskAPIKey masks an API key for logging, keeping the first and last four
// characters.
func MaskAPIKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
