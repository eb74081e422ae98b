package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"cfdclient/pkg/config"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

const testAddress = "0x1111111111111111111111111111111111111111"

type stubTokenStore struct {
	token     string
	issuedFor string
}

func (s *stubTokenStore) Load() (string, string, error) {
	if s.token == "" {
		return "", "", errors.ErrCredentialNotFound
	}
	return s.token, s.issuedFor, nil
}

func (s *stubTokenStore) Save(token, issuedFor string) error {
	s.token = token
	s.issuedFor = issuedFor
	return nil
}

func (s *stubTokenStore) Clear() error {
	s.token = ""
	s.issuedFor = ""
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenStore) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.BackendConfig{
		BaseURL: server.URL,
	}, tokens, logger.NewNop())
	return client, server
}

func TestDoAttachesBearerToken(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true}`))
	}, &stubTokenStore{token: "tok-123", issuedFor: testAddress})

	err := client.VerifyToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestDoOmitsBearerWithoutToken(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true}`))
	}, &stubTokenStore{})

	err := client.VerifyToken(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDoMapsUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":"token expired"}`))
	}, &stubTokenStore{token: "stale"})

	err := client.VerifyToken(context.Background())
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestDoMapsServerErrorToRemoteError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"database unavailable"}`))
	}, &stubTokenStore{})

	err := client.VerifyToken(context.Background())

	var remote *errors.RemoteError
	assert.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusInternalServerError, remote.Code)
	assert.Equal(t, "database unavailable", remote.Message)
}

func TestDoMapsTransportFailureToNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(config.BackendConfig{BaseURL: server.URL}, &stubTokenStore{}, logger.NewNop())

	err := client.VerifyToken(context.Background())
	assert.ErrorIs(t, err, errors.ErrNetwork)
}

func TestWalletLoginDecodesCredential(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/wallet-login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"success":true,"token":"jwt-abc"}`))
	}, &stubTokenStore{})

	cred, err := client.WalletLogin(context.Background(), testAddress, "0xsig", "message")
	assert.NoError(t, err)
	assert.Equal(t, "jwt-abc", cred.Token)
	assert.Equal(t, testAddress, cred.IssuedFor)
}

func TestWalletLoginWithoutTokenFails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}, &stubTokenStore{})

	_, err := client.WalletLogin(context.Background(), testAddress, "0xsig", "message")
	assert.Error(t, err)
}

func TestICOStatusDecodesPhase(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ico/status", r.URL.Path)
		w.Write([]byte(`{
			"success": true,
			"ico": {
				"icoActive": true,
				"totalRaised": 12345.5,
				"currentPhase": {
					"phase": 2,
					"tokenPrice": 0.03,
					"bonusPercentage": 10,
					"minPurchase": 20,
					"maxPurchase": 5000,
					"tokensSold": 1000000,
					"totalTokens": 6000000
				}
			}
		}`))
	}, &stubTokenStore{})

	status, err := client.ICOStatus(context.Background())
	assert.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, 2, status.CurrentPhase.Number)
	assert.True(t, status.CurrentPhase.MinPurchase.Equal(decimal.NewFromInt(20)))
	assert.True(t, status.CurrentPhase.MaxPurchase.Equal(decimal.NewFromInt(5000)))
}

func TestDividendInfoMapsHistory(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dividends/info/"+testAddress, r.URL.Path)
		w.Write([]byte(`{
			"success": true,
			"availableDividends": 7.25,
			"totalDividendsReceived": 100,
			"dividendHistory": [
				{"_id": "d1", "amount": 5, "date": "2025-05-01T00:00:00Z", "claimed": true},
				{"_id": "d2", "amount": 7.25, "date": "2025-06-01T00:00:00Z", "claimed": false}
			]
		}`))
	}, &stubTokenStore{})

	info, err := client.DividendInfo(context.Background(), testAddress)
	assert.NoError(t, err)
	assert.True(t, info.TotalUnclaimed.Equal(decimal.RequireFromString("7.25")))
	assert.Len(t, info.Distributions, 2)
	assert.Equal(t, "d2", info.Distributions[1].ID)
	assert.False(t, info.Distributions[1].Claimed)
}

func TestRecordPurchaseSendsWirePayload(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{"success":true}`))
	}, &stubTokenStore{token: "tok"})

	err := client.RecordPurchase(context.Background(), testAddress, decimal.NewFromInt(25), 1, "0xhash", "")
	assert.NoError(t, err)
	assert.Contains(t, gotBody, `"walletAddress":"`+testAddress+`"`)
	assert.Contains(t, gotBody, `"amountInMatic":"25"`)
	assert.Contains(t, gotBody, `"txHash":"0xhash"`)
	assert.NotContains(t, gotBody, "affiliateCode")
}
