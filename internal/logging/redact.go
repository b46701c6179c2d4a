// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package logging

// RedactToken keeps the first and last four characters of a bearer token.
// Example: "eyJhbGciOiJIUzI1NiJ9.e30.sig" -> "eyJh....sig"
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactSubject masks an IdP subject for log lines that leave the audit trail.
func RedactSubject(subject string) string {
	if subject == "" {
		return ""
	}
	if len(subject) <= 8 {
		return "***"
	}
	return subject[:4] + "..." + subject[len(subject)-4:]
}
