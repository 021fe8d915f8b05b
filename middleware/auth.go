package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/utils"
)

// ContextActorKey is the key used to store the request actor in Gin context.
const ContextActorKey = "actor"

// Authenticator turns bearer tokens into actors.
type Authenticator struct {
	secret string
	admins map[string]bool
}

// NewAuthenticator verifies tokens signed with secret. Members whose username
// is listed in admins act with administrator rights.
func NewAuthenticator(secret string, admins []string) *Authenticator {
	a := &Authenticator{secret: secret, admins: map[string]bool{}}
	for _, name := range admins {
		a.admins[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return a
}

// AuthRequired ensures the request carries a valid bearer token.
func (a *Authenticator) AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor, code, msg := a.resolve(ctx)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		if actor.IsAnonymous() {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			return
		}
		ctx.Set(ContextActorKey, actor)
		ctx.Next()
	}
}

// OptionalAuth attaches the actor when a valid token is present and the
// anonymous actor otherwise. Malformed tokens are still rejected.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor, code, msg := a.resolve(ctx)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		ctx.Set(ContextActorKey, actor)
		ctx.Next()
	}
}

func (a *Authenticator) resolve(ctx *gin.Context) (access.Actor, int, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return access.Anonymous, 0, ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return access.Anonymous, 40102, "invalid authorization header format"
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return access.Anonymous, 40103, "empty bearer token"
	}
	claims, err := utils.ParseToken(a.secret, tokenString)
	if err != nil {
		return access.Anonymous, 40105, "invalid token"
	}
	return access.Actor{
		ID:       claims.MemberID,
		Username: claims.Username,
		Admin:    a.admins[strings.ToLower(claims.Username)],
	}, 0, ""
}

// ActorFrom returns the request actor, anonymous when none was attached.
func ActorFrom(ctx *gin.Context) access.Actor {
	if v, ok := ctx.Get(ContextActorKey); ok {
		if a, ok := v.(access.Actor); ok {
			return a
		}
	}
	return access.Anonymous
}
