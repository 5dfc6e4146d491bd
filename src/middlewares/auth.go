package middlewares

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"ticketshop/src/db"
	"ticketshop/src/models"
	"ticketshop/src/types"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken   = errors.New("missing bearer token")
	errInvalidSubject = errors.New("token subject is not a user id")
)

func jwtKey() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// AuthMiddleware rejects requests without a valid bearer token and puts the
// caller's id, email and role into the context.
func AuthMiddleware(ctx *gin.Context) {
	user, err := authenticate(ctx)
	if err != nil {
		log.Printf("[auth] %s\n", err.Error())
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	setCaller(ctx, user)
}

// OptionalAuthMiddleware identifies the caller when a token is sent and lets
// anonymous requests through. An invalid token is still rejected.
func OptionalAuthMiddleware(ctx *gin.Context) {
	user, err := authenticate(ctx)
	if errors.Is(err, errMissingToken) {
		return
	}
	if err != nil {
		log.Printf("[auth] %s\n", err.Error())
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	setCaller(ctx, user)
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware(ctx *gin.Context) {
	if ctx.GetString("role") != types.ROLE_ADMIN {
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
}

func authenticate(ctx *gin.Context) (*models.User, error) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	reqToken, ok := strings.CutPrefix(bearerToken, "Bearer ")
	if !ok || strings.TrimSpace(reqToken) == "" {
		return nil, errMissingToken
	}
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		return jwtKey(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, err
	}
	if uid == 0 {
		return nil, errInvalidSubject
	}
	var user models.User
	if err := db.GetDb().First(&user, uid).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func setCaller(ctx *gin.Context, user *models.User) {
	ctx.Set("id", user.ID)
	ctx.Set("email", user.Email)
	ctx.Set("role", user.Role)
	ctx.Set("user", user)
}

// SignToken issues an HS256 token for the user, valid for ttl.
func SignToken(user *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := types.Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtKey())
}
