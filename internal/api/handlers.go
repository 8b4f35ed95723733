package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"personachat/internal/auth"
	"personachat/internal/models"
	"personachat/internal/service/account"
	"personachat/internal/service/chat"
	"personachat/internal/service/chatbot"
)

// Handler wires HTTP routes to the account, chatbot, and chat services.
type Handler struct {
	accounts *account.Service
	bots     *chatbot.Service
	chats    *chat.Service
	auth     *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(accounts *account.Service, bots *chatbot.Service, chats *chat.Service, authService *auth.Service) *Handler {
	return &Handler{
		accounts: accounts,
		bots:     bots,
		chats:    chats,
		auth:     authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.GET("/chatbots", h.listChatbots)
	api.GET("/chatbots/:id", h.getChatbot)

	authed := api.Group("", h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.GET("/auth/me", h.currentUser)
	authed.POST("/auth/logout", h.logout)
	authed.DELETE("/auth/account", h.deleteAccount)
	authed.POST("/chatbots", h.createChatbot)
	authed.GET("/chatbots/my", h.myChatbots)
	authed.PUT("/chatbots/:id", h.updateChatbot)
	authed.DELETE("/chatbots/:id", h.deleteChatbot)
	authed.POST("/chat/:id/start", h.startChat)
	authed.POST("/chat/:id/message", h.sendMessage)
	authed.GET("/chat/:id/messages", h.getMessages)
	authed.GET("/conversations", h.listConversations)
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.issueSession(c, user, http.StatusCreated)
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	h.issueSession(c, user, http.StatusOK)
}

// issueSession mints a bearer token plus CSRF cookie and writes the auth
// response for register/login.
func (h *Handler) issueSession(c *gin.Context, user *models.User, status int) {
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(status, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.accounts.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.DeleteUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

type chatbotRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Introduction string `json:"introduction"`
	IsCensored   *bool  `json:"is_censored"`
}

func (h *Handler) createChatbot(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	owner, err := h.accounts.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	isCensored := true
	if req.IsCensored != nil {
		isCensored = *req.IsCensored
	}
	bot, err := h.bots.Create(c.Request.Context(), owner, chatbot.CreateParams{
		Name:         req.Name,
		Description:  req.Description,
		Introduction: req.Introduction,
		IsCensored:   isCensored,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *Handler) listChatbots(c *gin.Context) {
	bots, err := h.bots.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if bots == nil {
		bots = make([]models.Chatbot, 0)
	}
	c.JSON(http.StatusOK, bots)
}

func (h *Handler) myChatbots(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	bots, err := h.bots.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if bots == nil {
		bots = make([]models.Chatbot, 0)
	}
	c.JSON(http.StatusOK, bots)
}

func (h *Handler) getChatbot(c *gin.Context) {
	bot, err := h.bots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chatbot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bot)
}

type chatbotUpdateRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Introduction *string `json:"introduction"`
	IsCensored   *bool   `json:"is_censored"`
}

func (h *Handler) updateChatbot(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatbotUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	bot, err := h.bots.Update(c.Request.Context(), c.Param("id"), userID, chatbot.UpdateParams{
		Name:         req.Name,
		Description:  req.Description,
		Introduction: req.Introduction,
		IsCensored:   req.IsCensored,
	})
	if err != nil {
		h.writeChatbotError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *Handler) deleteChatbot(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	convIDs, err := h.bots.Delete(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeChatbotError(c, err)
		return
	}
	// The deleted conversations' generator session memory goes with them.
	h.chats.ForgetSessions(convIDs...)
	c.JSON(http.StatusOK, gin.H{"message": "Chatbot deleted successfully"})
}

func (h *Handler) writeChatbotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chatbot.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chatbot not found"})
	case errors.Is(err, chatbot.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (h *Handler) startChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conv, err := h.chats.StartConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chatbot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

type messageRequest struct {
	Message string `json:"message"`
}

// sendMessage runs one conversational turn. Generation failures are not
// errors at this level: the response is always the persisted user/bot
// message pair.
func (h *Handler) sendMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	turn, err := h.chats.HandleTurn(c.Request.Context(), c.Param("id"), req.Message, userID)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (h *Handler) getMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	messages, err := h.chats.ListMessages(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) listConversations(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	convs, err := h.chats.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if convs == nil {
		convs = make([]models.Conversation, 0)
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) writeChatError(c *gin.Context, err error) {
	var storageErr *chat.StorageError
	switch {
	case errors.Is(err, chat.ErrConversationNotFound), errors.Is(err, chatbot.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
	case errors.As(err, &storageErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
