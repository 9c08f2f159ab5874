// Package device вычисляет отпечаток устройства для входа через Telegram.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint возвращает хеш связки user-agent, IP и email. Первый вход
// привязывает устройство к пользователю, несовпадение при последующих входах
// фиксируется в логах, но вход не блокируется.
func Fingerprint(userAgent, ip, email string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip + "|" + strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}

// ClientIP извлекает адрес клиента с учетом X-Forwarded-For
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		if i := strings.Index(forwardedFor, ","); i >= 0 {
			return strings.TrimSpace(forwardedFor[:i])
		}
		return strings.TrimSpace(forwardedFor)
	}
	return remoteAddr
}
