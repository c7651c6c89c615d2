package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessageParsesMessageID(t *testing.T) {
	var gotPath string
	var gotBody SendMessageRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if r.Header.Get("X-Correlation-ID") == "" {
			t.Error("correlation id missing")
		}
		w.Write([]byte(`{"messageId": 555}`))
	}))
	defer ts.Close()

	c := New(ts.URL)
	id, err := c.SendMessage(context.Background(), SendMessageRequest{
		FromUserID: 1, ToUserID: 2, Message: "hi", Silent: true,
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 555 {
		t.Fatalf("message id = %d, want 555", id)
	}
	if gotPath != "/send-message" {
		t.Fatalf("wrong path: %q", gotPath)
	}
	if gotBody.FromUserID != 1 || gotBody.ToUserID != 2 || !gotBody.Silent {
		t.Fatalf("wrong body: %+v", gotBody)
	}
}

func TestSendMessageToleratesMissingID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	id, err := New(ts.URL).SendMessage(context.Background(), SendMessageRequest{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected zero id, got %d", id)
	}
}

func TestNon200BecomesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("recipient does not exist"))
	}))
	defer ts.Close()

	_, err := New(ts.URL).SendMessage(context.Background(), SendMessageRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != 422 || apiErr.Body != "recipient does not exist" {
		t.Fatalf("wrong error: %+v", apiErr)
	}
}

func TestSendVerificationCodeUsesQueryParams(t *testing.T) {
	var gotQuery map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"userId":      r.URL.Query().Get("userId"),
			"phoneNumber": r.URL.Query().Get("phoneNumber"),
			"code":        r.URL.Query().Get("code"),
		}
		w.Write([]byte(`{"phoneCodeHash":"hash-9"}`))
	}))
	defer ts.Close()

	hash, err := New(ts.URL).SendVerificationCode(context.Background(), 1234567890, "1234567890", "54321")
	if err != nil {
		t.Fatalf("SendVerificationCode: %v", err)
	}
	if hash != "hash-9" {
		t.Fatalf("hash = %q", hash)
	}
	if gotQuery["userId"] != "1234567890" || gotQuery["code"] != "54321" {
		t.Fatalf("wrong query: %v", gotQuery)
	}
}

func TestSetVerifiedQuery(t *testing.T) {
	var gotVerified string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVerified = r.URL.Query().Get("verified")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := New(ts.URL).SetVerified(context.Background(), 7, true); err != nil {
		t.Fatalf("SetVerified: %v", err)
	}
	if gotVerified != "true" {
		t.Fatalf("verified = %q", gotVerified)
	}
}

func TestAnswerCallbackWirePayload(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	err := New(ts.URL).AnswerCallback(context.Background(), AnswerCallbackRequest{
		QueryID: 7, PeerID: 1, MsgID: 2, Alert: true, Message: "done", CacheTime: 3,
	})
	if err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	if got["queryId"] != float64(7) || got["alert"] != true || got["cacheTime"] != float64(3) {
		t.Fatalf("wrong payload: %v", got)
	}
	if _, present := got["url"]; present {
		t.Fatal("empty url must be omitted")
	}
}
