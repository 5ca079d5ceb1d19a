package forumbot

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestAPI(t testing.TB) (*API, *fakeDiscordSession) {
	t.Helper()

	config := DefaultConfig()
	config.Discord.GuildID = "guild-1"
	config.Discord.TierRoles = map[string]string{
		"silver":  "role-silver",
		"gold":    "role-gold",
		"diamond": "role-diamond",
	}
	config.API.Key = testAPIKey
	config.API.CORS.AllowOrigins = []string{"*"}

	session := newFakeDiscordSession()
	bot := &Bot{
		config:  config,
		discord: newTestDiscord(session, config.Discord),
		logger:  slog.Default(),
	}

	api, err := newAPI(bot, config.API)
	require.NoError(t, err)
	return api, session
}

func apiRequest(
	t testing.TB,
	api *API,
	method string,
	path string,
	body string,
	authenticated bool,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set(xAPIKeyHeader, testAPIKey)
	}
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	return w
}

func decodeMessage(t testing.TB, w *httptest.ResponseRecorder) string {
	t.Helper()
	var reply httpReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	return reply.Message
}

func TestAPIHealthCheckUnauthenticated(t *testing.T) {
	api, _ := newTestAPI(t)

	w := apiRequest(t, api, http.MethodGet, apiHealthCheck, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))
}

func TestAPIRejectsMissingOrWrongKey(t *testing.T) {
	api, _ := newTestAPI(t)

	w := apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathAssignRole,
		`{"userId": "user-1", "tier": "gold"}`,
		false,
	)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(
		http.MethodPost,
		apiPathAssignRole,
		strings.NewReader(`{"userId": "user-1", "tier": "gold"}`),
	)
	req.Header.Set(xAPIKeyHeader, "wrong-key")
	w = httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIAssignRole(t *testing.T) {
	api, session := newTestAPI(t)
	session.members["user-1"] = &discordgo.Member{
		User:  &discordgo.User{ID: "user-1"},
		Roles: []string{"role-silver", "unrelated-role"},
	}

	w := apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathAssignRole,
		`{"userId": "user-1", "tier": "Gold"}`,
		true,
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(
		t,
		"Successfully assigned gold role to user user-1",
		decodeMessage(t, w),
	)

	assert.Equal(t, []string{"role-gold"}, session.addedRoles)
	// the previous tier role is stripped, unrelated roles are left alone
	assert.Equal(t, []string{"role-silver"}, session.removedRoles)
}

func TestAPIAssignRoleValidation(t *testing.T) {
	api, session := newTestAPI(t)
	session.members["user-1"] = &discordgo.Member{
		User: &discordgo.User{ID: "user-1"},
	}

	w := apiRequest(t, api, http.MethodPost, apiPathAssignRole, `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathAssignRole,
		`{"userId": "user-1", "tier": "platinum"}`,
		true,
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathAssignRole,
		`{"userId": "missing-user", "tier": "gold"}`,
		true,
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIRemoveRole(t *testing.T) {
	api, session := newTestAPI(t)
	session.members["user-1"] = &discordgo.Member{
		User:  &discordgo.User{ID: "user-1"},
		Roles: []string{"role-silver", "role-gold", "unrelated-role"},
	}

	w := apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathRemoveRole,
		`{"userId": "user-1"}`,
		true,
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	message := decodeMessage(t, w)
	assert.Contains(t, message, "user-1")
	assert.Contains(t, message, "silver")
	assert.Contains(t, message, "gold")

	assert.ElementsMatch(
		t,
		[]string{"role-silver", "role-gold"},
		session.removedRoles,
	)
}

func TestAPIRemoveRoleNoTierRoles(t *testing.T) {
	api, session := newTestAPI(t)
	session.members["user-1"] = &discordgo.Member{
		User:  &discordgo.User{ID: "user-1"},
		Roles: []string{"unrelated-role"},
	}

	w := apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathRemoveRole,
		`{"userId": "user-1"}`,
		true,
	)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(
		t,
		"No tier roles found to remove from user user-1",
		decodeMessage(t, w),
	)
	assert.Empty(t, session.removedRoles)
}

func TestAPIOAuthJoinValidation(t *testing.T) {
	api, _ := newTestAPI(t)

	w := apiRequest(t, api, http.MethodPost, apiPathOAuthJoin, `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(
		t,
		api,
		http.MethodPost,
		apiPathOAuthJoin,
		`{"code": "abc"}`,
		true,
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
