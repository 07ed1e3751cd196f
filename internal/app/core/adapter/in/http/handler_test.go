package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/identity"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
)

type envelope struct {
	OK    bool             `json:"ok"`
	Data  json.RawMessage  `json:"data"`
	Error *usecase.Failure `json:"error"`
}

func newServer(t *testing.T) (*httptest.Server, *usecase.AccountFacade) {
	t.Helper()
	return newServerWith(t, usecase.DefaultConfig())
}

func newServerWith(t *testing.T, cfg usecase.Config) (*httptest.Server, *usecase.AccountFacade) {
	t.Helper()
	store, err := memory.NewMutexLedger(nil)
	if err != nil {
		t.Fatalf("NewMutexLedger: %v", err)
	}
	facade := usecase.NewCore(store, nil, cfg)
	srv := httptest.NewServer(NewHandler(facade, identity.NewTrustedHeader(nil)).Router())
	t.Cleanup(srv.Close)
	return srv, facade
}

func do(t *testing.T, srv *httptest.Server, method, path, session, body string, headers ...string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if session != "" {
		req.Header.Set(identity.HeaderName, session)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAccountLifecycle(t *testing.T) {
	srv, _ := newServer(t)

	code, env := do(t, srv, http.MethodPost, "/api/v1/accounts", "alice", `{"name":"wallet"}`)
	if code != http.StatusCreated || !env.OK {
		t.Fatalf("create = %d %+v", code, env.Error)
	}
	var account domain.Account
	json.Unmarshal(env.Data, &account)
	base := "/api/v1/accounts/" + jsonInt(account.ID)

	key := uuid.NewString()
	for i := 0; i < 2; i++ {
		code, env = do(t, srv, http.MethodPost, base+"/deposit", "alice", `{"amount":500}`, "Idempotency-Key", key)
		if code != http.StatusOK {
			t.Fatalf("deposit #%d = %d %+v", i, code, env.Error)
		}
	}
	code, env = do(t, srv, http.MethodGet, base, "alice", "")
	var got domain.Account
	json.Unmarshal(env.Data, &got)
	if code != http.StatusOK || got.Balance != 500 {
		t.Fatalf("balance after replayed deposit = %d (%d)", got.Balance, code)
	}

	code, env = do(t, srv, http.MethodPost, base+"/withdraw", "alice", `{"amount":900}`)
	if code != http.StatusUnprocessableEntity || env.Error.Code != domain.CodeInsufficientFunds {
		t.Fatalf("overdraw = %d %+v", code, env.Error)
	}

	code, env = do(t, srv, http.MethodPost, base+"/withdraw", "bob", `{"amount":1}`)
	if code != http.StatusForbidden {
		t.Fatalf("foreign withdraw = %d %+v", code, env.Error)
	}

	code, env = do(t, srv, http.MethodGet, base+"/members", "alice", "")
	if code != http.StatusBadRequest || env.Error.Code != domain.CodeInvalidInput {
		t.Fatalf("members of personal account = %d %+v", code, env.Error)
	}

	code, env = do(t, srv, http.MethodGet, base+"/transactions", "alice", "")
	var entries []domain.LogEntry
	json.Unmarshal(env.Data, &entries)
	if code != http.StatusOK || len(entries) != 1 {
		t.Fatalf("transactions = %d, %d entries", code, len(entries))
	}
}

func TestSharedAccountMembers(t *testing.T) {
	srv, _ := newServer(t)
	code, env := do(t, srv, http.MethodPost, "/api/v1/shared-accounts", "owner", `{"name":"club","members":[{"user_id":"c1","role":"contributor"}]}`)
	if code != http.StatusCreated {
		t.Fatalf("create shared = %d %+v", code, env.Error)
	}
	var account domain.Account
	json.Unmarshal(env.Data, &account)
	base := "/api/v1/accounts/" + jsonInt(account.ID)

	code, env = do(t, srv, http.MethodPost, base+"/members", "owner", `{"user_id":"a1","role":"admin"}`)
	if code != http.StatusCreated {
		t.Fatalf("add member = %d %+v", code, env.Error)
	}
	code, env = do(t, srv, http.MethodPost, base+"/members", "owner", `{"user_id":"a1","role":"admin"}`)
	if code != http.StatusConflict || env.Error.Code != domain.CodeAlreadyMember {
		t.Fatalf("duplicate member = %d %+v", code, env.Error)
	}
	code, env = do(t, srv, http.MethodDelete, base+"/members/owner", "owner", "")
	if code != http.StatusConflict || env.Error.Code != domain.CodeLastOwner {
		t.Fatalf("remove last owner = %d %+v", code, env.Error)
	}
	code, env = do(t, srv, http.MethodDelete, base+"/members/c1", "a1", "")
	if code != http.StatusOK {
		t.Fatalf("admin removes contributor = %d %+v", code, env.Error)
	}

	code, env = do(t, srv, http.MethodGet, base+"/members", "a1", "")
	var members []domain.SharedAccountUser
	json.Unmarshal(env.Data, &members)
	if code != http.StatusOK || len(members) != 2 {
		t.Fatalf("members = %d %+v", code, members)
	}
}

func TestRequestValidation(t *testing.T) {
	srv, _ := newServer(t)

	code, env := do(t, srv, http.MethodGet, "/api/v1/accounts", "", "")
	if code != http.StatusUnauthorized || env.Error.Code != domain.CodeUnauthorized {
		t.Fatalf("missing session = %d %+v", code, env.Error)
	}
	code, env = do(t, srv, http.MethodGet, "/api/v1/accounts/abc", "alice", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad id = %d %+v", code, env.Error)
	}
	code, env = do(t, srv, http.MethodPost, "/api/v1/accounts", "alice", `{"name":`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad json = %d %+v", code, env.Error)
	}
	code, env = do(t, srv, http.MethodGet, "/api/v1/accounts/999", "alice", "")
	if code != http.StatusNotFound || env.Error.Code != domain.CodeAccountNotFound {
		t.Fatalf("missing account = %d %+v", code, env.Error)
	}
}

func TestSessionCreatesDefaultAccount(t *testing.T) {
	srv, facade := newServer(t)
	code, _ := do(t, srv, http.MethodPost, "/api/v1/sessions", "carol", "")
	if code != http.StatusAccepted {
		t.Fatalf("session = %d", code)
	}
	facade.Wait()

	code, env := do(t, srv, http.MethodGet, "/api/v1/accounts", "carol", "")
	var accounts []domain.Account
	json.Unmarshal(env.Data, &accounts)
	if code != http.StatusOK || len(accounts) != 1 || !accounts[0].IsDefault {
		t.Fatalf("accounts = %d %+v", code, accounts)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestAdminAdjustRequiresAdministrator(t *testing.T) {
	cfg := usecase.DefaultConfig()
	cfg.Administrators = []string{"ops"}
	srv, facade := newServerWith(t, cfg)
	ctx := context.Background()
	victim, err := facade.CreateAccount(ctx, "victim", "savings")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	body := fmt.Sprintf(`{"account_id":%d,"amount":500}`, victim.ID)

	for _, path := range []string{"/api/v1/admin/add-money", "/api/v1/admin/remove-money"} {
		code, env := do(t, srv, http.MethodPost, path, "mallory", body)
		if code != http.StatusForbidden || env.OK || env.Error.Code != domain.CodeUnauthorized {
			t.Fatalf("mallory %s = %d %+v", path, code, env.Error)
		}
	}
	if got, _ := facade.GetBalance(ctx, "victim", victim.ID); got.Balance != 0 {
		t.Fatalf("balance = %d, want 0", got.Balance)
	}

	code, env := do(t, srv, http.MethodPost, "/api/v1/admin/add-money", "ops", body)
	if code != http.StatusOK || !env.OK {
		t.Fatalf("ops add-money = %d %+v", code, env.Error)
	}
	if got, _ := facade.GetBalance(ctx, "victim", victim.ID); got.Balance != 500 {
		t.Fatalf("balance = %d, want 500", got.Balance)
	}
}
