package compact

import (
	"net/url"
	"strings"

	"github.com/capiscio/hap-core/pkg/protocol"
)

// QueryParam is the query parameter that carries a compact record.
const QueryParam = "c"

// VerificationURL embeds a compact record into baseURL as ?c=<escaped>.
func VerificationURL(baseURL, text string) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + QueryParam + "=" + url.QueryEscape(text)
}

// ExtractFromURL returns the compact record carried in a verification URL.
func ExtractFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", protocol.WrapError(protocol.ErrCodeInvalidFormat, "invalid verification URL", err)
	}

	text := parsed.Query().Get(QueryParam)
	if text == "" {
		return "", protocol.NewError(protocol.ErrCodeInvalidFormat, "URL carries no compact record")
	}
	if !IsValid(text) {
		return "", protocol.NewError(protocol.ErrCodeInvalidFormat, "URL carries an invalid compact record")
	}
	return text, nil
}
