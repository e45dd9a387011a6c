package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_ConcatenationOrder(t *testing.T) {
	secret := "test-secret"
	ts := "1724745600"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("GET" + ts + "/v2/positions/margined" + "?product_id=27" + ""))
	want := hex.EncodeToString(mac.Sum(nil))

	got := Sign(secret, "GET", ts, "/v2/positions/margined", "?product_id=27", "")
	assert.Equal(t, want, got)
	assert.Len(t, got, 64)
}

func TestSign_SensitiveToEveryComponent(t *testing.T) {
	base := Sign("secret", "GET", "100", "/v2/orders", "", "")

	assert.NotEqual(t, base, Sign("other", "GET", "100", "/v2/orders", "", ""))
	assert.NotEqual(t, base, Sign("secret", "POST", "100", "/v2/orders", "", ""))
	assert.NotEqual(t, base, Sign("secret", "GET", "101", "/v2/orders", "", ""))
	assert.NotEqual(t, base, Sign("secret", "GET", "100", "/v2/wallet/balances", "", ""))
	assert.NotEqual(t, base, Sign("secret", "GET", "100", "/v2/orders", "?state=open", ""))
	assert.NotEqual(t, base, Sign("secret", "GET", "100", "/v2/orders", "", `{"size":1}`))

	// 确定性
	assert.Equal(t, base, Sign("secret", "GET", "100", "/v2/orders", "", ""))
}

func TestEncodeSorted_StableKeyOrder(t *testing.T) {
	params := url.Values{}
	params.Set("symbol", "BTCUSD")
	params.Set("end", "200")
	params.Set("resolution", "1d")
	params.Set("start", "100")

	// 签名串必须稳定：key 按字典序
	assert.Equal(t, "end=200&resolution=1d&start=100&symbol=BTCUSD", encodeSorted(params))
}

func TestEncodeSorted_EscapesValues(t *testing.T) {
	params := url.Values{}
	params.Set("contract_types", "perpetual_futures,futures")
	assert.Equal(t, "contract_types=perpetual_futures%2Cfutures", encodeSorted(params))
}
