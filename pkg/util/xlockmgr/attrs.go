package xlockmgr

import "log/slog"

// 日志属性键
const (
	attrKeyName     = "lock_name"
	attrKeyMode     = "lock_mode"
	attrKeyTicketID = "ticket_id"
	attrKeyClientID = "client_id"
)

// AttrName 锁名称
func AttrName(name string) slog.Attr {
	return slog.String(attrKeyName, name)
}

// AttrMode 锁模式
func AttrMode(m Mode) slog.Attr {
	return slog.String(attrKeyMode, m.String())
}

// AttrTicketID 票据 ID
func AttrTicketID(id string) slog.Attr {
	return slog.String(attrKeyTicketID, id)
}

// AttrClientID 请求方，为空时返回会被忽略的空属性
func AttrClientID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String(attrKeyClientID, id)
}
