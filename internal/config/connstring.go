package config

import (
	"fmt"
	"strings"
)

const defaultEndpointSuffix = "core.windows.net"

// AzureConnection is the parsed form of an Azure storage connection
// string.
type AzureConnection struct {
	Protocol       string
	AccountName    string
	AccountKey     string
	EndpointSuffix string
	BlobEndpoint   string
}

// BlobBaseURL returns the account URL without a trailing slash, e.g.
// "https://acct.blob.core.windows.net".
func (c AzureConnection) BlobBaseURL() string {
	if c.BlobEndpoint != "" {
		return strings.TrimRight(c.BlobEndpoint, "/")
	}
	return c.Protocol + "://" + c.AccountName + ".blob." + c.EndpointSuffix
}

// ParseAzureConnectionString parses "Key=Value;Key=Value" pairs. Keys are
// matched case-insensitively; values may contain '=' (account keys end in
// base64 padding).
func ParseAzureConnectionString(s string) (AzureConnection, error) {
	conn := AzureConnection{
		Protocol:       "https",
		EndpointSuffix: defaultEndpointSuffix,
	}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return AzureConnection{}, fmt.Errorf("parsing connection string: malformed segment %q", part)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "defaultendpointsprotocol":
			conn.Protocol = value
		case "accountname":
			conn.AccountName = value
		case "accountkey":
			conn.AccountKey = value
		case "endpointsuffix":
			conn.EndpointSuffix = value
		case "blobendpoint":
			conn.BlobEndpoint = value
		}
	}
	if conn.AccountName == "" {
		return AzureConnection{}, fmt.Errorf("parsing connection string: AccountName is missing")
	}
	if conn.AccountKey == "" {
		return AzureConnection{}, fmt.Errorf("parsing connection string: AccountKey is missing")
	}
	return conn, nil
}

// ResolveAzure merges the connection string, when present, with the
// explicit Azure settings. Explicit account, key and endpoint win;
// protocol and suffix come from the string unless changed from their
// defaults.
func (a AzureConfig) ResolveAzure() (AzureConnection, error) {
	conn := AzureConnection{
		Protocol:       a.Protocol,
		AccountName:    a.AccountName,
		AccountKey:     a.AccountKey,
		EndpointSuffix: a.EndpointSuffix,
		BlobEndpoint:   a.BlobEndpoint,
	}
	if a.ConnectionString != "" {
		parsed, err := ParseAzureConnectionString(a.ConnectionString)
		if err != nil {
			return AzureConnection{}, err
		}
		if conn.AccountName == "" {
			conn.AccountName = parsed.AccountName
		}
		if conn.AccountKey == "" {
			conn.AccountKey = parsed.AccountKey
		}
		if conn.BlobEndpoint == "" {
			conn.BlobEndpoint = parsed.BlobEndpoint
		}
		if parsed.Protocol != "" && (conn.Protocol == "" || conn.Protocol == "https") {
			conn.Protocol = parsed.Protocol
		}
		if parsed.EndpointSuffix != "" && (conn.EndpointSuffix == "" || conn.EndpointSuffix == defaultEndpointSuffix) {
			conn.EndpointSuffix = parsed.EndpointSuffix
		}
	}
	if conn.Protocol == "" {
		conn.Protocol = "https"
	}
	if conn.EndpointSuffix == "" {
		conn.EndpointSuffix = defaultEndpointSuffix
	}
	return conn, nil
}
