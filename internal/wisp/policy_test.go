package wisp

import "testing"

func TestValidateTarget(t *testing.T) {
	cases := []struct {
		name    string
		host    string
		port    uint16
		wantErr bool
	}{
		{"public host ok", "echo.example.com", 7, false},
		{"empty host rejected", "", 80, true},
		{"zero port rejected", "example.com", 0, true},
		{"localhost rejected", "localhost", 80, true},
		{"mdns rejected", "printer.local", 80, true},
		{"loopback literal rejected", "127.0.0.1", 80, true},
		{"private literal rejected", "192.168.1.1", 80, true},
		{"link-local literal rejected", "169.254.1.1", 80, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateTarget(c.host, c.port)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidateTarget(%q, %d) err=%v, wantErr=%v", c.host, c.port, err, c.wantErr)
			}
		})
	}
}

func TestValidateTargetRespectsBlacklist(t *testing.T) {
	BlacklistedPorts[9999] = true
	defer delete(BlacklistedPorts, 9999)
	if err := ValidateTarget("example.com", 9999); err == nil {
		t.Fatal("expected blacklisted port to be rejected")
	}
}
