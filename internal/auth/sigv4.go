// Package auth produces the authorization headers for the object-storage
// wire protocols objio speaks: AWS Signature Version 4 for S3-compatible
// endpoints and Shared Key for Azure Blob storage. Everything in this
// package is a pure function of its inputs.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

const (
	// algorithm is the signing algorithm identifier.
	algorithm = "AWS4-HMAC-SHA256"

	// scopeTerminator is the fixed suffix of the credential scope.
	scopeTerminator = "aws4_request"

	// service is the service name for S3.
	service = "s3"

	// EmptyPayloadHash is the SHA-256 hash of an empty payload.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// amzDateFormat is the format for x-amz-date values.
	amzDateFormat = "20060102T150405Z"
)

// Header is one name/value pair of a signed header list. Lists are ordered
// and may be sent as-is.
type Header struct {
	Name  string
	Value string
}

// S3Context holds the credentials and destination used to sign one
// S3-compatible request.
type S3Context struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	// Host is the value of the host header, e.g.
	// "examplebucket.s3.us-east-1.amazonaws.com".
	Host string
	// Timestamp is the request time formatted as YYYYMMDDTHHMMSSZ.
	Timestamp string
}

// AmzTimestamp formats t as an x-amz-date value.
func AmzTimestamp(t time.Time) string {
	return t.UTC().Format(amzDateFormat)
}

// HashPayload returns the hex SHA-256 of the concatenated segments.
func HashPayload(segments [][]byte) string {
	h := sha256.New()
	for _, s := range segments {
		h.Write(s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SignS3 signs a request with AWS Signature Version 4 and returns the full
// header list to send: every signed header in lexicographic order followed
// by Authorization. path is the unescaped object path starting with "/".
// payloadHash is the hex SHA-256 of the body; an empty value means an empty
// body.
//
// SignS3 returns nil when the access key, secret, region, host or timestamp
// is missing. Callers treat a nil result as a configuration error.
func SignS3(verb, path string, headers []Header, payloadHash string, sc S3Context) []Header {
	if sc.AccessKey == "" || sc.SecretKey == "" || sc.Region == "" || sc.Host == "" || len(sc.Timestamp) < 8 {
		return nil
	}
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	signed := make([]Header, 0, len(headers)+4)
	for _, h := range headers {
		signed = append(signed, Header{Name: strings.ToLower(strings.TrimSpace(h.Name)), Value: strings.TrimSpace(h.Value)})
	}
	signed = append(signed,
		Header{Name: "host", Value: sc.Host},
		Header{Name: "x-amz-content-sha256", Value: payloadHash},
		Header{Name: "x-amz-date", Value: sc.Timestamp},
	)
	if sc.SessionToken != "" {
		signed = append(signed, Header{Name: "x-amz-security-token", Value: sc.SessionToken})
	}
	sort.SliceStable(signed, func(i, j int) bool { return signed[i].Name < signed[j].Name })

	names := make([]string, len(signed))
	for i, h := range signed {
		names[i] = h.Name
	}
	signedHeaders := strings.Join(names, ";")

	date := sc.Timestamp[:8]
	scope := date + "/" + sc.Region + "/" + service + "/" + scopeTerminator
	canonicalRequest := buildCanonicalRequest(verb, path, signed, signedHeaders, payloadHash)
	stringToSign := buildStringToSign(sc.Timestamp, scope, canonicalRequest)
	signingKey := deriveSigningKey(sc.SecretKey, date, sc.Region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authorization := algorithm + " Credential=" + sc.AccessKey + "/" + scope +
		",SignedHeaders=" + signedHeaders +
		",Signature=" + signature

	return append(signed, Header{Name: "Authorization", Value: authorization})
}

// buildCanonicalRequest builds the SigV4 canonical request. The query
// string is always empty for the object requests objio issues.
func buildCanonicalRequest(verb, path string, headers []Header, signedHeaders, payloadHash string) string {
	var sb strings.Builder
	sb.WriteString(verb)
	sb.WriteByte('\n')
	sb.WriteString(canonicalURI(path))
	sb.WriteByte('\n')
	sb.WriteByte('\n')
	for _, h := range headers {
		sb.WriteString(h.Name)
		sb.WriteByte(':')
		sb.WriteString(h.Value)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(signedHeaders)
	sb.WriteByte('\n')
	sb.WriteString(payloadHash)
	return sb.String()
}

// buildStringToSign constructs the SigV4 string to sign.
func buildStringToSign(amzDate, scope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return algorithm + "\n" +
		amzDate + "\n" +
		scope + "\n" +
		hex.EncodeToString(hash[:])
}

// deriveSigningKey derives the SigV4 signing key using the HMAC chain.
func deriveSigningKey(secretKey, dateStr, region, svc string) []byte {
	dateKey := hmacSHA256([]byte("AWS4"+secretKey), dateStr)
	regionKey := hmacSHA256(dateKey, region)
	serviceKey := hmacSHA256(regionKey, svc)
	return hmacSHA256(serviceKey, scopeTerminator)
}

// canonicalURI returns the URI-encoded absolute path.
// Forward slashes are NOT encoded. Empty path becomes "/".
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = URIEncode(seg, false)
	}
	return strings.Join(segments, "/")
}

// EscapePath returns path in the form the signature covers, suitable for
// building the request URL.
func EscapePath(path string) string {
	return canonicalURI(path)
}

// URIEncode percent-encodes every byte outside the unreserved set, as
// SigV4 requires. Slashes are kept when encodeSlash is false.
func URIEncode(s string, encodeSlash bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) || (!encodeSlash && c == '/') {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigit(c >> 4))
			sb.WriteByte(hexDigit(c & 0x0f))
		}
	}
	return sb.String()
}

func isURIUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// hexDigit returns the uppercase hex digit for a 4-bit value.
func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
