package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AzureAPIVersion is the x-ms-version sent with every Shared Key request.
const AzureAPIVersion = "2018-03-28"

// AzureContext holds the credentials and destination used to sign one
// Azure Blob request.
type AzureContext struct {
	Account    string
	AccountKey string // base64, as issued by the portal
	Container  string
	// Date is the request time in RFC1123 GMT form, sent as x-ms-date.
	Date string
}

// AzureDate formats t as an x-ms-date value.
func AzureDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// SignAzure signs a Blob request with Shared Key and returns the header
// list to send: the caller's headers, x-ms-date, x-ms-version and
// Authorization. blob is the blob name relative to the container.
//
// SignAzure returns nil when the account, key, container or date is
// missing, or when the key is not valid base64.
func SignAzure(verb, blob string, contentLength int64, contentType string, headers []Header, ac AzureContext) []Header {
	if ac.Account == "" || ac.AccountKey == "" || ac.Container == "" || ac.Date == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(ac.AccountKey)
	if err != nil {
		return nil
	}

	out := make([]Header, 0, len(headers)+3)
	out = append(out, headers...)
	out = append(out,
		Header{Name: "x-ms-date", Value: ac.Date},
		Header{Name: "x-ms-version", Value: AzureAPIVersion},
	)

	stringToSign := buildAzureStringToSign(verb, blob, contentLength, contentType, out, ac)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return append(out, Header{Name: "Authorization", Value: "SharedKey " + ac.Account + ":" + signature})
}

// buildAzureStringToSign lays out the Shared Key string to sign. Of the
// standard fields only Content-Length and Content-Type are ever set; date
// and range travel as x-ms-* headers.
func buildAzureStringToSign(verb, blob string, contentLength int64, contentType string, headers []Header, ac AzureContext) string {
	length := ""
	if contentLength > 0 {
		length = strconv.FormatInt(contentLength, 10)
	}

	fields := []string{
		verb,
		"", // Content-Encoding
		"", // Content-Language
		length,
		"", // Content-MD5
		contentType,
		"", // Date
		"", // If-Modified-Since
		"", // If-Match
		"", // If-None-Match
		"", // If-Unmodified-Since
		"", // Range
	}

	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f)
		sb.WriteByte('\n')
	}
	sb.WriteString(canonicalAzureHeaders(headers))
	sb.WriteString("/" + ac.Account + "/" + ac.Container + "/" + blob)
	return sb.String()
}

// canonicalAzureHeaders returns the sorted x-ms-* block, one
// "name:value\n" line per header.
func canonicalAzureHeaders(headers []Header) string {
	var ms []Header
	for _, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h.Name))
		if strings.HasPrefix(name, "x-ms-") {
			ms = append(ms, Header{Name: name, Value: strings.TrimSpace(h.Value)})
		}
	}
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })

	var sb strings.Builder
	for _, h := range ms {
		sb.WriteString(h.Name)
		sb.WriteByte(':')
		sb.WriteString(h.Value)
		sb.WriteByte('\n')
	}
	return sb.String()
}
