package wsapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"autotrader/pkg/exchanges/common"
)

// Signer builds the canonical parameter set and authentication signature for
// privileged calls. The payload is `key=value` pairs joined by `&` with keys
// sorted lexicographically, keyed-hashed with HMAC-SHA256 and hex encoded, so
// iteration order of the input map never affects the output.
type Signer struct {
	apiKey string
	secret []byte

	mu     sync.Mutex
	lastTS int64
}

// NewSigner validates credentials up front; a missing secret fails fast with a
// configuration error before any network activity.
func NewSigner(apiKey, secret string) (*Signer, error) {
	if apiKey == "" {
		return nil, common.NewConfigError("api key is not set")
	}
	if secret == "" {
		return nil, common.NewConfigError("api secret is not set")
	}
	return &Signer{apiKey: apiKey, secret: []byte(secret)}, nil
}

// APIKey returns the public key injected into privileged calls.
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign computes the signature over params as-is.
func (s *Signer) Sign(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(paramString(params[k]))
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authorize injects apiKey and a monotonically increasing millisecond timestamp,
// then appends the signature computed over all other params. The input map is
// mutated and returned.
func (s *Signer) Authorize(params map[string]any, nowMillis int64) map[string]any {
	if params == nil {
		params = make(map[string]any)
	}
	params["apiKey"] = s.apiKey
	params["timestamp"] = s.nextTimestamp(nowMillis)
	params["signature"] = s.Sign(params)
	return params
}

// nextTimestamp never repeats or goes backwards even when the clock does.
func (s *Signer) nextTimestamp(now int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now <= s.lastTS {
		now = s.lastTS + 1
	}
	s.lastTS = now
	return now
}

// paramString renders a parameter value the way it appears on the wire.
func paramString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
