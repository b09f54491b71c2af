package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cipher-chat/internal/delivery"
	"cipher-chat/internal/identity"
	"cipher-chat/internal/mocks"
	"cipher-chat/internal/models"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.GET("/messages/:user_id", handler.GetMessages)
	r.POST("/messages/send/:user_id", handler.SendMessage)
	r.PUT("/messages/edit/:message_id", handler.EditMessage)
	r.DELETE("/messages/delete/:message_id", handler.DeleteMessage)
	r.GET("/presence", handler.Presence)
	return r
}

func TestGetMessagesSuccess(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	history := []models.Message{
		{ID: "m1", SenderID: "bob", ReceiverID: "alice", Text: "hi", Status: models.StatusDelivered},
		{ID: "m2", SenderID: "alice", ReceiverID: "bob", Text: "hey", Status: models.StatusSent},
	}
	svc.On("FetchHistory", mock.Anything, "alice", "bob").Return(history, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/bob", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "m1", resp.Messages[0].ID)
	assert.Equal(t, models.StatusDelivered, resp.Messages[0].Status)
	svc.AssertExpectations(t)
}

func TestGetMessagesEmptyHistory(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	svc.On("FetchHistory", mock.Anything, "alice", "bob").Return(nil, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/bob", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestGetMessagesWithSelf(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/alice", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "FetchHistory", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesStoreError(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	svc.On("FetchHistory", mock.Anything, "alice", "bob").Return(nil, assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/bob", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to load messages"}`, rec.Body.String())
}

func TestSendMessageCreated(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	created := models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hello", Status: models.StatusSent, CreatedAt: time.Now().UTC()}
	svc.On("Send", mock.Anything, "alice", "bob", "hello", "").Return(created, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/send/bob", bytes.NewBufferString(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		NewMessage models.Message `json:"newMessage"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "m1", resp.NewMessage.ID)
	assert.Equal(t, models.StatusSent, resp.NewMessage.Status)
	svc.AssertExpectations(t)
}

func TestSendMessageInvalid(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	svc.On("Send", mock.Anything, "alice", "bob", "", "").Return(nil, delivery.ErrInvalidMessage).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/send/bob", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageMalformedBody(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/messages/send/bob", bytes.NewBufferString(`{"text":`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", delivery.ErrNotFound, http.StatusNotFound},
		{"not sender", delivery.ErrForbidden, http.StatusForbidden},
		{"deleted", delivery.ErrMessageDeleted, http.StatusConflict},
		{"store", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mocks.MessageServiceMock)
			router := setupMessageRouter(NewMessageHandler(svc, nil, nil))
			svc.On("Edit", mock.Anything, "alice", "m1", "fixed").Return(nil, tc.err).Once()

			req := httptest.NewRequest(http.MethodPut, "/messages/edit/m1", bytes.NewBufferString(`{"text":"fixed"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestEditMessageSuccess(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	edited := time.Now().UTC()
	svc.On("Edit", mock.Anything, "alice", "m1", "fixed").
		Return(models.Message{ID: "m1", SenderID: "alice", Text: "fixed", Status: models.StatusRead, EditedAt: &edited}, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/messages/edit/m1", bytes.NewBufferString(`{"text":"fixed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Message models.Message `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "fixed", resp.Message.Text)
	assert.Equal(t, models.StatusRead, resp.Message.Status)
	assert.NotNil(t, resp.Message.EditedAt)
}

func TestEditMessageRequiresText(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	req := httptest.NewRequest(http.MethodPut, "/messages/edit/m1", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessage(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(svc, nil, nil))

	svc.On("Delete", mock.Anything, "alice", "m1").Return(models.Message{ID: "m1", Deleted: true}, nil).Once()
	svc.On("Delete", mock.Anything, "alice", "m2").Return(nil, delivery.ErrForbidden).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/messages/delete/m1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"m1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/messages/delete/m2", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertExpectations(t)
}

func TestPresence(t *testing.T) {
	presence := new(mocks.PresenceMock)
	router := setupMessageRouter(NewMessageHandler(new(mocks.MessageServiceMock), presence, nil))

	presence.On("OnlineUsers").Return([]string{"alice", "bob"}).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"onlineUsers":["alice","bob"]}`, rec.Body.String())
}

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := identity.NewTokenVerifier("secret")

	disabled := gin.New()
	RegisterDebugRoutes(disabled, nil, DebugOptions{Enabled: false, Tokens: tokens})
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/token/alice", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	enabled := gin.New()
	RegisterDebugRoutes(enabled, nil, DebugOptions{Enabled: true, Tokens: tokens})

	rec = httptest.NewRecorder()
	enabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/token/alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	userID, err := tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	rec = httptest.NewRecorder()
	enabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
