package claim

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// IDPrefix starts every claim identifier.
const IDPrefix = "hap_"

// TestIDPrefix starts identifiers of non-production claims.
const TestIDPrefix = "hap_test_"

// IDChars is the alphabet used for identifier suffixes.
const IDChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	idRegex     = regexp.MustCompile(`^hap_[A-Za-z0-9]{12}$`)
	testIDRegex = regexp.MustCompile(`^hap_test_[A-Za-z0-9]{8}$`)
)

// GenerateID returns a production identifier with a 12-character random suffix.
func GenerateID() (string, error) {
	suffix, err := randomSuffix(12)
	if err != nil {
		return "", err
	}
	return IDPrefix + suffix, nil
}

// GenerateTestID returns a test identifier with an 8-character random suffix.
func GenerateTestID() (string, error) {
	suffix, err := randomSuffix(8)
	if err != nil {
		return "", err
	}
	return TestIDPrefix + suffix, nil
}

// randomSuffix draws n characters uniformly from IDChars using rejection
// sampling over crypto/rand bytes.
func randomSuffix(n int) (string, error) {
	const limit = 256 - 256%len(IDChars)

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, IDChars[int(b)%len(IDChars)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// IsValidID reports whether id is a production identifier.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsTestID reports whether id is a test identifier.
func IsTestID(id string) bool {
	return testIDRegex.MatchString(id)
}

// ExtractIDFromURL returns the identifier in the last path segment of a
// verification URL, or "" if there is none.
func ExtractIDFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	last := path[strings.LastIndex(path, "/")+1:]
	if IsValidID(last) || IsTestID(last) {
		return last
	}
	return ""
}

// HashContent returns "sha256:<hex>" of content, for VAs that bind a claim
// to the message it accompanied.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "sha256:" + hex.EncodeToString(sum[:])
}
