package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/api/handlers"
	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/types"
)

func unauthorized(w http.ResponseWriter, msg string) {
	handlers.WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, msg, nil)
}

// bearer 返回 Authorization: Bearer 之后的部分
func bearer(r *http.Request) (string, bool) {
	return strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// presentedKey X-API-Key 优先，其次 Bearer
func presentedKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	k, _ := bearer(r)
	return k
}

// guarded 公开路径直接放行，其余交给 check；check 返回 false 时已写出响应
func guarded(public []string, check func(w http.ResponseWriter, r *http.Request) (*http.Request, bool)) Middleware {
	skip := stringSet(public)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if r, ok := check(w, r); ok {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// APIKeyAuth 接受 X-API-Key 或 Authorization: Bearer <key>
func APIKeyAuth(validKeys, public []string, logger *zap.Logger) Middleware {
	keys := stringSet(validKeys)
	return guarded(public, func(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
		key := presentedKey(r)
		if _, ok := keys[key]; key == "" || !ok {
			logger.Debug("api key rejected", zap.String("path", r.URL.Path))
			unauthorized(w, "invalid or missing API key")
			return r, false
		}
		return r, true
	})
}

// JWTAuth 只接受 HS256；配置了 issuer 时校验 iss。
// user_id 声明（缺省取 sub）写入请求上下文，chat 请求未带 user_id 时使用它。
func JWTAuth(cfg config.AuthConfig, public []string, logger *zap.Logger) Middleware {
	secret := []byte(cfg.JWTSecret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	keyFunc := func(*jwt.Token) (any, error) {
		if len(secret) == 0 {
			return nil, errors.New("jwt secret not configured")
		}
		return secret, nil
	}

	return guarded(public, func(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
		raw, ok := bearer(r)
		if !ok {
			unauthorized(w, "missing or malformed Authorization header")
			return r, false
		}
		claims := jwt.MapClaims{}
		if _, err := jwt.ParseWithClaims(raw, claims, keyFunc, opts...); err != nil {
			logger.Debug("jwt rejected", zap.Error(err))
			unauthorized(w, "invalid or expired token")
			return r, false
		}

		userID, _ := claims["user_id"].(string)
		if userID == "" {
			userID, _ = claims.GetSubject()
		}
		if userID == "" {
			return r, true
		}
		return r.WithContext(types.WithUserID(r.Context(), userID)), true
	})
}

// Authentication 未开启时返回 nil。同时配置了 API Key 与 JWT 密钥时，
// 请求携带的是已知 API Key 就按 Key 校验，否则按 JWT 校验。
func Authentication(cfg config.AuthConfig, public []string, logger *zap.Logger) Middleware {
	if !cfg.Enabled {
		return nil
	}
	byKey := APIKeyAuth(cfg.APIKeys, public, logger)
	switch {
	case cfg.JWTSecret == "":
		return byKey
	case len(cfg.APIKeys) == 0:
		return JWTAuth(cfg, public, logger)
	}

	byJWT := JWTAuth(cfg, public, logger)
	keys := stringSet(cfg.APIKeys)
	return func(next http.Handler) http.Handler {
		viaKey, viaJWT := byKey(next), byJWT(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, known := keys[presentedKey(r)]
			if known || r.Header.Get("X-API-Key") != "" {
				viaKey.ServeHTTP(w, r)
				return
			}
			viaJWT.ServeHTTP(w, r)
		})
	}
}
