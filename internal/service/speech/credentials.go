package speech

import (
	"errors"
	"net/http"
	"strings"

	speechmodel "github.com/zhouzirui/urdu-voicebot/backend/internal/model/speech"
)

var (
	errConfigMissing      = errors.New("火山引擎语音配置未初始化")
	errCredentialsMissing = errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")
)

// volcengineHeaders 生成握手鉴权头，AccessToken 为空时回落到 APIKey。
func volcengineHeaders(cfg *speechmodel.VolcengineConfig, resourceID, connectID string) (http.Header, error) {
	if cfg == nil {
		return nil, errConfigMissing
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return nil, errCredentialsMissing
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)
	return header, nil
}
