package payment

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
)

// canonicalJSON serializes payload to compact JSON with lexicographically
// sorted keys and no HTML escaping, matching what the provider signs.
// encoding/json already sorts map keys; the encoder is only needed to turn
// off HTML escaping.
func canonicalJSON(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// signPayload computes the provider signature: drop null values, sort keys,
// canonical JSON, base64, MD5(base64 + api key), lowercase hex.
func signPayload(payload map[string]any, apiKey string) (string, error) {
	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		clean[k] = v
	}

	jsonBytes, err := canonicalJSON(clean)
	if err != nil {
		return "", err
	}
	b64 := base64.StdEncoding.EncodeToString(jsonBytes)
	sum := md5.Sum([]byte(b64 + apiKey))
	return hex.EncodeToString(sum[:]), nil
}

// verifySignature recomputes the signature over payload minus the sign field,
// injecting the merchant id if the provider omitted it. It never fails, only
// returns false.
func verifySignature(payload map[string]any, claimed, merchantID, apiKey string) bool {
	if claimed == "" {
		return false
	}
	clean := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		if k == "sign" {
			continue
		}
		clean[k] = v
	}
	if _, ok := clean["merchant_id"]; !ok {
		clean["merchant_id"] = merchantID
	}
	computed, err := signPayload(clean, apiKey)
	if err != nil {
		return false
	}
	return computed == claimed
}
