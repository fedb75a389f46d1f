package stakingd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/tuturu-tech/nft-staking/config"
	"github.com/tuturu-tech/nft-staking/core/events"
	"github.com/tuturu-tech/nft-staking/gateway/middleware"
	"github.com/tuturu-tech/nft-staking/observability/logging"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "stakingd-test"
	testAudience = "stakingd-api"
)

var (
	stakingToken = common.HexToAddress("0x0000000000000000000000000000000000005101")
	rewardToken  = common.HexToAddress("0x0000000000000000000000000000000000005202")
	strayToken   = common.HexToAddress("0x0000000000000000000000000000000000005303")
	custodian    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	admin        = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type testService struct {
	t     *testing.T
	svc   *Service
	http  *httptest.Server
	clock int64
}

func testConfig(t *testing.T, dir string, inMemory bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Ledger = config.LedgerConfig{
		StakingToken: stakingToken.Hex(),
		RewardToken:  rewardToken.Hex(),
		Custodian:    custodian.Hex(),
		Admin:        admin.Hex(),
		RewardRate:   100,
	}
	cfg.Auth.HMACSecret = testSecret
	cfg.Auth.Issuer = testIssuer
	cfg.Auth.Audience = testAudience
	cfg.RateLimit.RatePerSecond = 1000
	cfg.RateLimit.Burst = 1000
	cfg.Storage = config.StorageConfig{
		LedgerDir:       filepath.Join(dir, "ledger"),
		IdempotencyPath: filepath.Join(dir, "idempotency.db"),
		HistoryDSN:      "file:" + filepath.Join(dir, "history.db"),
		InMemory:        inMemory,
	}
	cfg.Devnet = config.DevnetConfig{
		Enabled:     true,
		RewardFloat: "1000000",
		Mints: []config.DevnetMint{
			{Owner: alice.Hex(), Count: 3},
			{Owner: bob.Hex(), Count: 2},
		},
	}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *testService {
	t.Helper()
	logger := logging.SetupWriter(io.Discard, "stakingd", "test")
	svc, err := Build(cfg, logger)
	require.NoError(t, err)
	ts := &testService{t: t, svc: svc, clock: 1_000}
	svc.Engine.SetNowFunc(func() int64 { return ts.clock })
	ts.http = httptest.NewServer(svc.Server.Handler())
	t.Cleanup(func() {
		ts.http.Close()
		_ = svc.Close()
	})
	return ts
}

func startService(t *testing.T) *testService {
	t.Helper()
	return newTestService(t, testConfig(t, t.TempDir(), true))
}

func (ts *testService) advance(seconds int64) { ts.clock += seconds }

func (ts *testService) do(method, path string, caller *common.Address, body any, headers map[string]string) (*http.Response, []byte) {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != nil {
		token, err := middleware.IssueToken(testSecret, *caller, testIssuer, testAudience, time.Hour)
		require.NoError(ts.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.http.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp, payload
}

func (ts *testService) post(path string, caller common.Address, body any) (*http.Response, []byte) {
	ts.t.Helper()
	return ts.do(http.MethodPost, path, &caller, body, nil)
}

func (ts *testService) position(addr common.Address) positionResponse {
	ts.t.Helper()
	resp, body := ts.do(http.MethodGet, "/v1/accounts/"+addr.Hex(), nil, nil, nil)
	require.Equal(ts.t, http.StatusOK, resp.StatusCode, string(body))
	var pos positionResponse
	require.NoError(ts.t, json.Unmarshal(body, &pos))
	return pos
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope map[string]errorBody
	require.NoError(t, json.Unmarshal(body, &envelope), string(body))
	return envelope["error"].Code
}

func TestStakeClaimWithdrawFlow(t *testing.T) {
	ts := startService(t)

	resp, body := ts.post("/v1/stake", alice, map[string]any{"unitIds": []uint64{1, 2}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NotEmpty(t, resp.Header.Get(headerRequestID))

	pos := ts.position(alice)
	require.Equal(t, uint64(2), pos.Balance)
	require.Equal(t, []uint64{1, 2}, pos.Units)
	require.Equal(t, "0", pos.Earned)

	ts.advance(10)
	require.Equal(t, "1000", ts.position(alice).Earned)

	resp, body = ts.post("/v1/claim", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var claim map[string]string
	require.NoError(t, json.Unmarshal(body, &claim))
	require.Equal(t, "1000", claim["paid"])
	require.Equal(t, 0, ts.svc.Backend.Balances().BalanceOf(rewardToken, alice).Cmp(big.NewInt(1000)))

	resp, body = ts.post("/v1/withdraw", alice, map[string]any{"unitIds": []uint64{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Equal(t, uint64(1), ts.position(alice).Balance)

	resp, body = ts.post("/v1/withdraw-all", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Equal(t, uint64(0), ts.position(alice).Balance)
	for _, id := range []uint64{1, 2} {
		owner, err := ts.svc.Backend.Collection().OwnerOf(id)
		require.NoError(t, err)
		require.Equal(t, alice, owner)
	}

	resp, body = ts.do(http.MethodGet, "/v1/ledger", nil, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary ledgerResponse
	require.NoError(t, json.Unmarshal(body, &summary))
	require.Equal(t, uint64(0), summary.TotalSupply)
	require.Equal(t, uint64(100), summary.RewardRate)
	require.Equal(t, "1000", summary.Paid)
	require.Equal(t, rewardToken.Hex(), summary.RewardToken)

	resp, body = ts.do(http.MethodGet, "/metrics", nil, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "nftstake_ledger_operations_total")
}

func TestMutationsRequireBearerToken(t *testing.T) {
	ts := startService(t)

	resp, _ := ts.do(http.MethodPost, "/v1/stake", nil, map[string]any{"unitIds": []uint64{1}}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(http.MethodPost, "/v1/claim", nil, nil, map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(http.MethodGet, "/healthz", nil, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPauseIsAdminOnly(t *testing.T) {
	ts := startService(t)

	resp, body := ts.post("/v1/admin/pause", alice, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "forbidden", errorCode(t, body))

	resp, _ = ts.post("/v1/admin/pause", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.post("/v1/stake", alice, map[string]any{"unitIds": []uint64{1}})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "paused", errorCode(t, body))

	resp, _ = ts.post("/v1/admin/paused", admin, map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.post("/v1/admin/paused", admin, map[string]any{"paused": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.post("/v1/stake", alice, map[string]any{"unitIds": []uint64{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestIdempotentReplay(t *testing.T) {
	ts := startService(t)
	headers := map[string]string{headerIdempotency: "stake-1"}

	first, firstBody := ts.do(http.MethodPost, "/v1/stake", &alice, map[string]any{"unitIds": []uint64{1}}, headers)
	require.Equal(t, http.StatusOK, first.StatusCode, string(firstBody))
	require.Empty(t, first.Header.Get(headerIdempotencyCache))

	second, secondBody := ts.do(http.MethodPost, "/v1/stake", &alice, map[string]any{"unitIds": []uint64{1}}, headers)
	require.Equal(t, http.StatusOK, second.StatusCode)
	require.Equal(t, "hit", second.Header.Get(headerIdempotencyCache))
	require.JSONEq(t, string(firstBody), string(secondBody))
	require.Equal(t, uint64(1), ts.svc.Engine.TotalSupply())

	mismatch, body := ts.do(http.MethodPost, "/v1/stake", &alice, map[string]any{"unitIds": []uint64{2}}, headers)
	require.Equal(t, http.StatusUnprocessableEntity, mismatch.StatusCode)
	require.Equal(t, "idempotency_mismatch", errorCode(t, body))

	// Keys are scoped per caller.
	other, body := ts.do(http.MethodPost, "/v1/stake", &bob, map[string]any{"unitIds": []uint64{4}}, headers)
	require.Equal(t, http.StatusOK, other.StatusCode, string(body))
	require.Empty(t, other.Header.Get(headerIdempotencyCache))
}

func TestErrorMapping(t *testing.T) {
	ts := startService(t)

	cases := []struct {
		name   string
		caller common.Address
		path   string
		body   any
		status int
	}{
		{"not owner", alice, "/v1/stake", map[string]any{"unitIds": []uint64{4}}, http.StatusForbidden},
		{"unknown unit", alice, "/v1/stake", map[string]any{"unitIds": []uint64{99}}, http.StatusForbidden},
		{"empty batch", alice, "/v1/stake", map[string]any{"unitIds": []uint64{}}, http.StatusBadRequest},
		{"duplicate", alice, "/v1/stake", map[string]any{"unitIds": []uint64{1, 1}}, http.StatusBadRequest},
		{"bad json", alice, "/v1/withdraw", "nope", http.StatusBadRequest},
		{"not callers token", bob, "/v1/withdraw", map[string]any{"unitIds": []uint64{1}}, http.StatusForbidden},
		{"recover not admin", alice, "/v1/admin/recover", map[string]any{"token": rewardToken.Hex()}, http.StatusForbidden},
		{"recover bad token", admin, "/v1/admin/recover", map[string]any{"token": "xyz"}, http.StatusBadRequest},
		{"recover negative", admin, "/v1/admin/recover", map[string]any{"token": rewardToken.Hex(), "amount": "-1"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := ts.post(tc.path, tc.caller, tc.body)
			require.Equal(t, tc.status, resp.StatusCode, string(body))
		})
	}

	resp, _ := ts.do(http.MethodGet, "/v1/accounts/not-an-address", nil, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, uint64(0), ts.svc.Engine.TotalSupply())
}

func TestRecoverRespectsRewardLiability(t *testing.T) {
	ts := startService(t)

	resp, body := ts.post("/v1/stake", alice, map[string]any{"unitIds": []uint64{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	ts.advance(100)

	resp, body = ts.post("/v1/admin/recover", admin, map[string]any{"token": rewardToken.Hex(), "amount": "990001"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "exceeds_surplus", errorCode(t, body))

	resp, body = ts.post("/v1/admin/recover", admin, map[string]any{"token": rewardToken.Hex(), "amount": "990000"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Equal(t, 0, ts.svc.Backend.Balances().BalanceOf(rewardToken, admin).Cmp(big.NewInt(990_000)))

	require.NoError(t, ts.svc.Backend.Balances().Mint(strayToken, custodian, big.NewInt(42)))
	resp, body = ts.post("/v1/admin/recover", admin, map[string]any{"token": strayToken.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "42", out["amount"])

	// The staker can still collect everything accrued.
	resp, body = ts.post("/v1/claim", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "10000", out["paid"])
}

func TestHistoryListsAccountEvents(t *testing.T) {
	ts := startService(t)

	resp, body := ts.post("/v1/stake", alice, map[string]any{"unitIds": []uint64{1, 2}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	ts.advance(5)
	resp, body = ts.post("/v1/claim", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = ts.post("/v1/stake", bob, map[string]any{"unitIds": []uint64{4}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = ts.do(http.MethodGet, "/v1/accounts/"+alice.Hex()+"/history", nil, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var listing struct {
		Account string         `json:"account"`
		Events  []historyEntry `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Events, 3)
	require.Equal(t, events.TypeRewardPaid, listing.Events[0].Type)
	require.Equal(t, "500", listing.Events[0].Attributes["amount"])
	require.Equal(t, events.TypeStaked, listing.Events[1].Type)
	require.Equal(t, events.TypeStaked, listing.Events[2].Type)
	require.Greater(t, listing.Events[0].Sequence, listing.Events[1].Sequence)

	resp, body = ts.do(http.MethodGet, "/v1/accounts/"+alice.Hex()+"/history?limit=1", nil, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Events, 1)

	resp, _ = ts.do(http.MethodGet, "/v1/accounts/"+alice.Hex()+"/history?limit=zero", nil, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts := startService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/v1/events/ws?types=" + events.TypeStaked
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return ts.svc.Hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, body := ts.post("/v1/admin/pause", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = ts.post("/v1/admin/unpause", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = ts.post("/v1/stake", alice, map[string]any{"unitIds": []uint64{3}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	var evt struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypeStaked, evt.Type)
	require.Equal(t, "3", evt.Attributes["unitId"])
	require.Equal(t, alice.Hex(), evt.Attributes["account"])
}

func TestRestartRestoresLedgerAndTokens(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, false)

	ctx := context.Background()
	logger := logging.SetupWriter(io.Discard, "stakingd", "test")
	first, err := Build(cfg, logger)
	require.NoError(t, err)
	first.Engine.SetNowFunc(func() int64 { return 1_000 })
	require.NoError(t, first.Ledger.Stake(ctx, alice, []uint64{1, 2}))
	first.Engine.SetNowFunc(func() int64 { return 1_010 })
	paid, err := first.Ledger.Claim(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "1000", paid.String())
	require.NoError(t, first.Close())

	second, err := Build(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	second.Engine.SetNowFunc(func() int64 { return 1_020 })

	require.Equal(t, uint64(2), second.Engine.TotalSupply())
	require.Equal(t, []uint64{1, 2}, second.Engine.GetStakedUnits(alice))
	owner, err := second.Backend.Collection().OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, custodian, owner)
	require.Equal(t, 0, second.Backend.Balances().BalanceOf(rewardToken, alice).Cmp(big.NewInt(1000)))
	require.Equal(t, 0, second.Backend.Balances().BalanceOf(rewardToken, custodian).Cmp(big.NewInt(999_000)))

	// Seeding only happens once.
	require.Equal(t, uint64(1), second.Backend.Collection().BalanceOf(alice))

	earned, err := second.Engine.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, "1000", earned.String())
	require.NoError(t, second.Ledger.WithdrawAll(ctx, alice))
	require.Equal(t, uint64(3), second.Backend.Collection().BalanceOf(alice))
}
