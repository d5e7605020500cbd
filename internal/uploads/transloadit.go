package uploads

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/handihand/backend/internal/config"
)

// TransloaditSigner produces signed assembly parameters for the browser-side
// transcoding pipeline. The client posts directly to Transloadit; our only
// job is vouching for the request with the shared secret.
type TransloaditSigner struct {
	authKey    string
	authSecret string
	templateID string

	// nowFunc overrides the clock in tests.
	nowFunc func() time.Time
}

// SignedParams is the payload the browser uploader expects.
type SignedParams struct {
	Params    string `json:"params"`
	Signature string `json:"signature"`
}

// NewTransloaditSigner builds a signer from configuration.
func NewTransloaditSigner(cfg config.TransloaditConfig) *TransloaditSigner {
	return &TransloaditSigner{
		authKey:    cfg.AuthKey,
		authSecret: cfg.AuthSecret,
		templateID: cfg.TemplateID,
	}
}

// Enabled reports whether signing credentials are configured.
func (t *TransloaditSigner) Enabled() bool {
	return t.authKey != "" && t.authSecret != ""
}

// Sign renders the assembly params JSON with a one-hour expiry and computes
// the sha384 HMAC over the exact serialized bytes.
func (t *TransloaditSigner) Sign() (SignedParams, error) {
	now := time.Now().UTC()
	if t.nowFunc != nil {
		now = t.nowFunc().UTC()
	}

	params := map[string]any{
		"auth": map[string]string{
			"key":     t.authKey,
			"expires": now.Add(time.Hour).Format("2006/01/02 15:04:05+00:00"),
		},
	}
	if t.templateID != "" {
		params["template_id"] = t.templateID
	}

	serialized, err := json.Marshal(params)
	if err != nil {
		return SignedParams{}, fmt.Errorf("serialize assembly params: %w", err)
	}

	mac := hmac.New(sha512.New384, []byte(t.authSecret))
	mac.Write(serialized)

	return SignedParams{
		Params:    string(serialized),
		Signature: "sha384:" + hex.EncodeToString(mac.Sum(nil)),
	}, nil
}
