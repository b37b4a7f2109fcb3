package xlockmgr

import (
	"fmt"
	"strings"
)

// Mode 锁模式
type Mode uint8

const (
	// Exclusive 独占：同一名称同时只有一个持有者。默认模式。
	Exclusive Mode = iota + 1
	// Shared 共享：可与其他 Shared 持有者并存。
	Shared
)

func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// IsValid 是否为已知模式
func (m Mode) IsValid() bool {
	return m == Exclusive || m == Shared
}

// ParseMode 解析 "exclusive"/"shared"（大小写不敏感）
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exclusive":
		return Exclusive, nil
	case "shared":
		return Shared, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// State 票据状态
//
//	Pending → Granted → Released
//	Pending → Rejected
type State uint8

const (
	StatePending State = iota
	StateGranted
	StateReleased
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateGranted:
		return "granted"
	case StateReleased:
		return "released"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}
