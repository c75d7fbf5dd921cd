package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/types"
)

// maskedValue 替换敏感配置值
const maskedValue = "***"

// SecretPaths 返回配置时需要脱敏的字段（gjson 路径）
var SecretPaths = []string{
	"llm.api_key",
	"embedding.api_key",
	"vector_store.api_key",
	"redis.password",
	"database.password",
	"auth.jwt_secret",
	"auth.api_keys",
}

// ConfigHandler GET /config
type ConfigHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(cfg *config.Config, logger *zap.Logger) *ConfigHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHandler{cfg: cfg, logger: logger}
}

// HandleGetConfig 返回脱敏后的当前配置
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	data, err := SanitizeConfig(h.cfg)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to render config").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, json.RawMessage(data))
}

// SanitizeConfig 将配置序列化为 JSON，并把非空的敏感字段替换为 "***"
func SanitizeConfig(cfg *config.Config) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	for _, path := range SecretPaths {
		v := gjson.GetBytes(data, path)
		if !v.Exists() {
			continue
		}
		if v.IsArray() {
			n := len(v.Array())
			if n == 0 {
				continue
			}
			masked := make([]string, n)
			for i := range masked {
				masked[i] = maskedValue
			}
			data, err = sjson.SetBytes(data, path, masked)
		} else if v.String() != "" {
			data, err = sjson.SetBytes(data, path, maskedValue)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}
