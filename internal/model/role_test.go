package model

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "student", want: RoleStudent},
		{in: "VENDOR", want: RoleVendor},
		{in: " admin ", want: RoleAdmin},
		{in: "super_admin", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRole_Can(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleStudent, CapViewAvailability, true},
		{RoleStudent, CapBook, true},
		{RoleStudent, CapManageInventory, false},
		{RoleStudent, CapViewAudit, false},
		{RoleVendor, CapViewAvailability, true},
		{RoleVendor, CapBook, false},
		{RoleVendor, CapManageInventory, true},
		{RoleVendor, CapViewAudit, false},
		{RoleAdmin, CapBook, true},
		{RoleAdmin, CapManageInventory, true},
		{RoleAdmin, CapViewAudit, true},
		{Role(0), CapViewAvailability, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String()+"/"+tt.cap.String(), func(t *testing.T) {
			if got := tt.role.Can(tt.cap); got != tt.want {
				t.Errorf("%v.Can(%v) = %v, want %v", tt.role, tt.cap, got, tt.want)
			}
		})
	}
}
