package stepup

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Backup code vault: generation, hashing, and single-use redemption
// bookkeeping for recovery codes. All functions are pure; the caller persists
// the removal of a redeemed hash.
//
// Codes are high-entropy random hex values, so a fast cryptographic digest is
// the right storage hash. A slow password KDF here would add latency without
// adding security; the defense is entropy, not hash cost.

func generateBackupCodes(count, length int) ([]string, error) {
	codes := make([]string, 0, count)
	raw := make([]byte, length/2)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		codes = append(codes, formatBackupCode(strings.ToUpper(hex.EncodeToString(raw))))
	}
	return codes, nil
}

// formatBackupCode inserts a display separator at the midpoint.
func formatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// canonicalizeBackupCode strips separators and whitespace, uppercases, and
// validates the fixed code shape. It returns "" for any candidate that is
// not exactly length uppercase hex characters, so malformed input never
// reaches the hash.
func canonicalizeBackupCode(code string, length int) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != length || !isHexString(s) {
		return ""
	}
	return s
}

// backupCodeHash digests a canonical code for storage. The hash is keyed by
// userID so identical codes issued to different users never share a digest.
func backupCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return blake2b.Sum256(data)
}

func hashBackupCodes(userID string, codes []string, length int) []BackupCodeRecord {
	records := make([]BackupCodeRecord, 0, len(codes))
	for _, code := range codes {
		records = append(records, BackupCodeRecord{
			Hash: backupCodeHash(userID, canonicalizeBackupCode(code, length)),
		})
	}
	return records
}

// redeemBackupCode scans for the candidate among the stored hashes and
// returns the matching index. It does not mutate state; the caller removes
// the index and persists the shortened list. Malformed candidates and
// unmatched candidates are both reported as a plain miss so neither failure
// mode leaks to the user.
func redeemBackupCode(userID, candidate string, length int, stored []BackupCodeRecord) (int, bool) {
	canonical := canonicalizeBackupCode(candidate, length)
	if canonical == "" {
		return 0, false
	}
	target := backupCodeHash(userID, canonical)
	for i, record := range stored {
		if record.Hash == target {
			return i, true
		}
	}
	return 0, false
}

func removeBackupCode(stored []BackupCodeRecord, index int) []BackupCodeRecord {
	out := make([]BackupCodeRecord, 0, len(stored)-1)
	out = append(out, stored[:index]...)
	out = append(out, stored[index+1:]...)
	return out
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
