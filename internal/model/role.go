package model

import (
	"fmt"
	"strings"
)

// Role は検証済みトークンに含まれる利用者の役割です
// 文字列のまま比較せず、ParseRole で一度だけ変換してから使います
type Role int

const (
	RoleStudent Role = iota + 1
	RoleVendor
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleVendor:
		return "vendor"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("unknown role: %d", int(r))
	}
}

// ParseRole はトークンの role クレームを Role に変換します
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, nil
	case "vendor":
		return RoleVendor, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Capability はAPI境界で確認する操作の種類です
type Capability int

const (
	CapViewAvailability Capability = iota + 1
	CapBook
	CapManageInventory
	CapViewAudit
)

func (c Capability) String() string {
	switch c {
	case CapViewAvailability:
		return "view_availability"
	case CapBook:
		return "book"
	case CapManageInventory:
		return "manage_inventory"
	case CapViewAudit:
		return "view_audit"
	default:
		return fmt.Sprintf("unknown capability: %d", int(c))
	}
}

// Can は役割が操作を許可されているかを返します
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleStudent:
		switch c {
		case CapViewAvailability, CapBook:
			return true
		case CapManageInventory, CapViewAudit:
			return false
		}
	case RoleVendor:
		switch c {
		case CapViewAvailability, CapManageInventory:
			return true
		case CapBook, CapViewAudit:
			return false
		}
	case RoleAdmin:
		switch c {
		case CapViewAvailability, CapBook, CapManageInventory, CapViewAudit:
			return true
		}
	}
	return false
}

// Identity は外部で発行・検証された利用者情報です
type Identity struct {
	Subject string
	Role    Role
}
