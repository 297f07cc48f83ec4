package aaa

import "time"

// Operators understood by the RADIUS server's SQL module.
const (
	// OpSetOnce adds the attribute only when not already present ("==" in
	// check items means "compare", which FreeRADIUS treats as a match
	// condition).
	OpSetOnce = "=="
	// OpOverwrite always (re)sets the value.
	OpOverwrite = ":="
	// OpAdd appends an additional value for multi-valued attributes.
	OpAdd = "+="
)

// Check/reply attribute names written by the provisioning engine. These are
// fixed by the external RADIUS server's dictionaries, not chosen here.
const (
	AttrCleartextPassword = "Cleartext-Password"
	AttrAuthType          = "Auth-Type"
	AttrExpiration        = "Expiration"
	AttrCallingStationID  = "Calling-Station-Id"
	AttrSimultaneousUse   = "Simultaneous-Use"
	AttrLoginTime         = "Login-Time"
	AttrFramedIPAddress   = "Framed-IP-Address"
	AttrMikrotikRateLimit = "Mikrotik-Rate-Limit"
)

// ValueReject on Auth-Type forces the server to reject the user regardless
// of credentials.
const ValueReject = "Reject"

// expirationLayout is the timestamp format the server's Expiration check
// item parses.
const expirationLayout = "Jan 02 2006 15:04:05"

// FormatExpiration renders an absolute expiry for the Expiration check item.
func FormatExpiration(t time.Time) string {
	return t.UTC().Format(expirationLayout)
}

// Attribute is one policy row value: name, operator and encoded value.
type Attribute struct {
	Name  string
	Op    string
	Value string
}

// GroupPolicy is the full attribute set for one plan group. Check items
// gate authentication (simultaneous use, login window); reply items are
// returned to the NAS (rate limits).
type GroupPolicy struct {
	CheckAttrs []Attribute
	ReplyAttrs []Attribute
}
