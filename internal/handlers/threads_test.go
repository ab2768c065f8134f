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

	"staffchat/internal/messaging"
	"staffchat/internal/middleware"
	"staffchat/internal/mocks"
	"staffchat/internal/models"
	"staffchat/internal/repositories"
	"staffchat/internal/telemetry"
)

var (
	admin = models.Identity{ID: 1, Role: models.RoleCoordinator, DisplayName: "admin", Authenticated: true}
	bob   = models.Identity{ID: 9, Role: models.RoleCounterpart, DisplayName: "bob"}
)

type handlerDeps struct {
	staff    *mocks.StaffRepositoryMock
	threads  *mocks.ThreadRepositoryMock
	messages *mocks.MessageRepositoryMock
	broker   *mocks.BrokerMock
	pub      *mocks.PublisherMock
}

func setupThreadRouter(who models.Identity) (*gin.Engine, *handlerDeps) {
	gin.SetMode(gin.TestMode)
	d := &handlerDeps{
		staff:    new(mocks.StaffRepositoryMock),
		threads:  new(mocks.ThreadRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		broker:   new(mocks.BrokerMock),
		pub:      new(mocks.PublisherMock),
	}
	audit := telemetry.NewAuditEmitter(d.pub, "audit", "staffchat", "test")
	svc := messaging.NewService(d.staff, d.messages, d.broker, audit)
	handler := NewThreadHandler(d.threads, d.messages, svc)

	r := gin.New()
	auth := func(c *gin.Context) {
		c.Set(middleware.IdentityKey, who)
		c.Next()
	}
	handler.Register(r, auth)
	return r, d
}

func TestListThreadsSuccess(t *testing.T) {
	router, d := setupThreadRouter(admin)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	d.threads.On("ListForViewer", mock.Anything, admin).Return([]models.Thread{
		{ID: 9, Peer: bob, UnreadCount: 2, LastMessage: &models.Snapshot{Text: "hey", CreatedAt: at, SenderRole: models.RoleCounterpart}},
	}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Threads []models.Thread `json:"threads"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Threads, 1)
	assert.Equal(t, models.ThreadID(9), resp.Threads[0].ID)
	assert.Equal(t, 2, resp.Threads[0].UnreadCount)
	d.threads.AssertExpectations(t)
}

func TestListThreadsEmptyIsArray(t *testing.T) {
	router, d := setupThreadRouter(admin)
	d.threads.On("ListForViewer", mock.Anything, admin).Return(nil, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threads":[]}`, rec.Body.String())
}

func TestListThreadsRepoError(t *testing.T) {
	router, d := setupThreadRouter(admin)
	d.threads.On("ListForViewer", mock.Anything, admin).Return(([]models.Thread)(nil), assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetMessagesOrdersByPairFromCounterpartSide(t *testing.T) {
	viewer := models.Identity{ID: 9, Role: models.RoleCounterpart, DisplayName: "bob", Authenticated: true}
	router, d := setupThreadRouter(viewer)
	d.staff.On("Get", mock.Anything, int64(1)).Return(admin, nil).Once()
	d.messages.On("ListByPair", mock.Anything, int64(1), int64(9)).Return([]models.Message{{ID: 1, CoordinatorID: 1, CounterpartID: 9, Text: "hello"}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads/1/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"text":"hello"`)
	d.messages.AssertExpectations(t)
}

func TestGetMessagesRejectsSameRolePeer(t *testing.T) {
	router, d := setupThreadRouter(admin)
	d.staff.On("Get", mock.Anything, int64(2)).Return(models.Identity{ID: 2, Role: models.RoleCoordinator}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads/2/messages", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.messages.AssertNotCalled(t, "ListByPair", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesInvalidPeer(t *testing.T) {
	router, _ := setupThreadRouter(admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/threads/abc/messages", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageCreatesAndBroadcasts(t *testing.T) {
	router, d := setupThreadRouter(admin)
	stored := models.Message{ID: 11, CoordinatorID: 1, CounterpartID: 9, SenderRole: models.RoleCoordinator, SenderID: 1, Text: "on my way"}
	d.staff.On("Get", mock.Anything, int64(9)).Return(bob, nil).Once()
	d.messages.On("Create", mock.Anything, admin, int64(9), "on my way").Return(stored, nil).Once()
	d.broker.On("Publish", mock.Anything, stored).Return(nil).Once()
	d.pub.On("Publish", mock.Anything, "audit", mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/threads/9/messages", bytes.NewBufferString(`{"text":"on my way"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, int64(11), msg.ID)
	d.messages.AssertExpectations(t)
	d.broker.AssertExpectations(t)
}

func TestPostMessageRejectsBlankText(t *testing.T) {
	router, d := setupThreadRouter(admin)

	req := httptest.NewRequest(http.MethodPost, "/threads/9/messages", bytes.NewBufferString(`{"text":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageUnknownPeer(t *testing.T) {
	router, d := setupThreadRouter(admin)
	d.staff.On("Get", mock.Anything, int64(404)).Return(models.Identity{}, repositories.ErrStaffNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/threads/404/messages", bytes.NewBufferString(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkReadNoContent(t *testing.T) {
	router, d := setupThreadRouter(admin)
	d.staff.On("Get", mock.Anything, int64(9)).Return(bob, nil).Once()
	d.messages.On("MarkRead", mock.Anything, admin, int64(9)).Return(int64(0), nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/threads/9/read", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	d.messages.AssertExpectations(t)
}

func TestMeReturnsIdentity(t *testing.T) {
	router, _ := setupThreadRouter(admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"role":"coordinator","display_name":"admin"}`, rec.Body.String())
}

func TestDebugAuditRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit", mock.Anything).Return(nil).Once()
	r := gin.New()
	RegisterDebugRoutes(r, telemetry.NewAuditEmitter(pub, "audit", "staffchat", "test"), true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	pub.AssertExpectations(t)
}
