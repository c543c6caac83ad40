package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yerlan/authgate/internal/metrics"
)

const refreshCookieName = "refreshToken"

// RegisterRoutes mounts the public authentication endpoints under /auth.
func RegisterRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", handler.register)
		authGroup.POST("/token", handler.token)
		authGroup.POST("/refresh", handler.refresh)
		authGroup.POST("/revoke", handler.revoke)
	}
}

// RegisterRoleRoutes mounts role administration endpoints; callers are
// expected to guard the group with AuthMiddleware and RequireRole.
func RegisterRoleRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	router.POST("/auth/roles", handler.addRole)
}

type httpHandler struct {
	service *Service
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Username  string `json:"username" binding:"required,max=50"`
	Password  string `json:"password" binding:"required,max=72"`
	FirstName string `json:"first_name" binding:"required,max=50"`
	LastName  string `json:"last_name" binding:"required,max=50"`
}

type tokenRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type addRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

type authResponse struct {
	Authenticated      bool     `json:"authenticated"`
	Message            string   `json:"message,omitempty"`
	Email              string   `json:"email,omitempty"`
	Username           string   `json:"username,omitempty"`
	AccessToken        string   `json:"access_token,omitempty"`
	ExpiresOn          int64    `json:"expires_on,omitempty"`
	RefreshToken       string   `json:"refresh_token,omitempty"`
	RefreshTokenExpiry int64    `json:"refresh_token_expires_on,omitempty"`
	Roles              []string `json:"roles,omitempty"`
}

func (h *httpHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Register(c.Request.Context(), RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		metrics.ObserveAuth("register", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	if !result.Authenticated {
		metrics.ObserveAuth("register", "rejected")
		c.JSON(http.StatusBadRequest, marshalAuthResponse(result))
		return
	}

	metrics.ObserveAuth("register", "success")
	c.JSON(http.StatusCreated, marshalAuthResponse(result))
}

func (h *httpHandler) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.GetToken(c.Request.Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		metrics.ObserveAuth("login", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	if !result.Authenticated {
		metrics.ObserveAuth("login", "rejected")
		c.JSON(http.StatusUnauthorized, marshalAuthResponse(result))
		return
	}

	metrics.ObserveAuth("login", "success")
	h.setRefreshCookie(c, result)
	c.JSON(http.StatusOK, marshalAuthResponse(result))
}

func (h *httpHandler) refresh(c *gin.Context) {
	presented := h.presentedRefreshToken(c)
	if presented == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh token is required"})
		return
	}

	result, err := h.service.RefreshToken(c.Request.Context(), presented)
	if err != nil {
		metrics.ObserveAuth("refresh", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh token"})
		return
	}

	if !result.Authenticated {
		metrics.ObserveAuth("refresh", "rejected")
		c.JSON(http.StatusUnauthorized, marshalAuthResponse(result))
		return
	}

	metrics.ObserveAuth("refresh", "success")
	h.setRefreshCookie(c, result)
	c.JSON(http.StatusOK, marshalAuthResponse(result))
}

func (h *httpHandler) revoke(c *gin.Context) {
	presented := h.presentedRefreshToken(c)
	if presented == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh token is required"})
		return
	}

	revoked, err := h.service.RevokeToken(c.Request.Context(), presented)
	if err != nil {
		metrics.ObserveAuth("revoke", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}

	if !revoked {
		metrics.ObserveAuth("revoke", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"revoked": false})
		return
	}

	metrics.ObserveAuth("revoke", "success")
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

func (h *httpHandler) addRole(c *gin.Context) {
	var req addRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.service.AddRole(c.Request.Context(), AddRoleInput{
		UserID: req.UserID,
		Role:   req.Role,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add role"})
		return
	}

	if message != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "role": req.Role})
}

// presentedRefreshToken reads the token from the body, falling back to the
// HttpOnly cookie set on login/refresh.
func (h *httpHandler) presentedRefreshToken(c *gin.Context) string {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		return cookie
	}
	return ""
}

func (h *httpHandler) setRefreshCookie(c *gin.Context, result AuthResult) {
	maxAge := int(time.Until(result.RefreshTokenExpiry).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetCookie(refreshCookieName, result.RefreshToken, maxAge, "/", "", true, true)
}

func marshalAuthResponse(result AuthResult) authResponse {
	resp := authResponse{
		Authenticated: result.Authenticated,
		Message:       result.Message,
		Email:         result.Email,
		Username:      result.Username,
		AccessToken:   result.AccessToken,
		RefreshToken:  result.RefreshToken,
		Roles:         result.Roles,
	}
	if !result.ExpiresOn.IsZero() {
		resp.ExpiresOn = result.ExpiresOn.Unix()
	}
	if !result.RefreshTokenExpiry.IsZero() {
		resp.RefreshTokenExpiry = result.RefreshTokenExpiry.Unix()
	}
	return resp
}
