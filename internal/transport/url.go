package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/palemoky/aircade/internal/protocol"
)

// BuildURL 由 API 地址推导会话的中继地址：http→ws，https→wss
func BuildURL(apiBase, sessionID string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBase, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api base: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/sessions/" + url.PathEscape(sessionID) + "/ws"
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// HostParams 主机角色的查询参数
func HostParams(token string) url.Values {
	return url.Values{"role": {string(protocol.RoleHost)}, "token": {token}}
}

// PlayerParams 玩家角色的查询参数
func PlayerParams(playerID string) url.Values {
	return url.Values{"role": {string(protocol.RolePlayer)}, "playerId": {playerID}}
}
