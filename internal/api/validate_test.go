package api

import (
	"strings"
	"testing"
)

func TestValidatePeerRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      peerRequest
		isCreate bool
		wantErr  string
	}{
		{"valid create", peerRequest{Extension: "1001", Secret: "supersecret1"}, true, ""},
		{"valid update without secret", peerRequest{Extension: "1001"}, false, ""},
		{"extension too short", peerRequest{Extension: "1", Secret: "supersecret1"}, true, "extension must be 2-6 digits"},
		{"extension too long", peerRequest{Extension: "1234567", Secret: "supersecret1"}, true, "extension must be 2-6 digits"},
		{"extension non-numeric", peerRequest{Extension: "10a1", Secret: "supersecret1"}, true, "extension must be 2-6 digits"},
		{"missing secret on create", peerRequest{Extension: "1001"}, true, "secret is required"},
		{"short secret", peerRequest{Extension: "1001", Secret: "short"}, true, "secret must be at least 8 characters"},
		{"bad outbound cid", peerRequest{Extension: "1001", Secret: "supersecret1", OutboundCID: "+4912"}, true, "outbound_cid must contain only digits"},
		{"bad pai", peerRequest{Extension: "1001", Secret: "supersecret1", PAI: "abc"}, true, "pai must contain only digits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validatePeerRequest(tt.req, tt.isCreate)
			if got != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, got)
			}
		})
	}
}

func TestValidateTrunkRequest_Defaults(t *testing.T) {
	req := trunkRequest{Name: "main", SIPServer: "sip.example.com", Username: "u1"}
	if errMsg := validateTrunkRequest(&req); errMsg != "" {
		t.Fatalf("expected no error, got %q", errMsg)
	}
	if req.Provider != "custom" {
		t.Errorf("expected provider default custom, got %q", req.Provider)
	}
	if req.AuthMode != "registration" {
		t.Errorf("expected auth_mode default registration, got %q", req.AuthMode)
	}
}

func TestValidateTrunkRequest_PresetPinsServer(t *testing.T) {
	req := trunkRequest{
		Name:      "landline",
		Provider:  "telekom_allip",
		Username:  "u1",
		SIPServer: "evil.example.com",
	}
	if errMsg := validateTrunkRequest(&req); errMsg != "" {
		t.Fatalf("expected no error, got %q", errMsg)
	}
	if req.SIPServer != "tel.t-online.de" {
		t.Errorf("expected preset to pin sip_server, got %q", req.SIPServer)
	}
}

func TestValidateTrunkRequest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     trunkRequest
		wantErr string
	}{
		{"missing name", trunkRequest{}, "name is required"},
		{"unknown provider", trunkRequest{Name: "t", Provider: "nope"}, "provider must be plusnet_basic, plusnet_connect, telekom_allip, or custom"},
		{"bad auth mode", trunkRequest{Name: "t", Provider: "custom", AuthMode: "magic"}, "auth_mode must be \"registration\" or \"ip\""},
		{"custom without server", trunkRequest{Name: "t", Provider: "custom", Username: "u"}, "sip_server is required for custom trunks"},
		{"registration without username", trunkRequest{Name: "t", Provider: "plusnet_basic"}, "username is required for registration trunks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			got := validateTrunkRequest(&req)
			if got != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, got)
			}
		})
	}
}

func TestValidateTrunkRequest_IPModeNeedsNoUsername(t *testing.T) {
	req := trunkRequest{Name: "peer", Provider: "custom", AuthMode: "ip", SIPServer: "10.0.0.5"}
	if errMsg := validateTrunkRequest(&req); errMsg != "" {
		t.Errorf("expected no error for ip trunk without username, got %q", errMsg)
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"valid", "correcthorse1", ""},
		{"too short", "abc1", "password must be at least 10 characters"},
		{"no digits", "onlyletters", "password must contain at least one letter and one digit"},
		{"no letters", "1234567890", "password must contain at least one letter and one digit"},
		{"exactly ten", "abcdefghi1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validatePasswordStrength(tt.password)
			if got != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, got)
			}
		})
	}
}

func TestCheckEmail(t *testing.T) {
	if errMsg := checkEmail(""); errMsg != "" {
		t.Errorf("empty email is optional, got %q", errMsg)
	}
	if errMsg := checkEmail("user@example.com"); errMsg != "" {
		t.Errorf("expected valid address, got %q", errMsg)
	}
	if errMsg := checkEmail("not-an-address"); errMsg == "" {
		t.Error("expected error for address without @")
	}
	long := strings.Repeat("a", 250) + "@x.de"
	if errMsg := checkEmail(long); errMsg == "" {
		t.Error("expected error for overlong address")
	}
}

func TestDIDPattern(t *testing.T) {
	valid := []string{"+4932168753", "4932168753", "031168753"}
	for _, did := range valid {
		if !didRe.MatchString(did) {
			t.Errorf("expected %q to be a valid did", did)
		}
	}
	invalid := []string{"", "+49 321", "12", "abc", "++49321687"}
	for _, did := range invalid {
		if didRe.MatchString(did) {
			t.Errorf("expected %q to be rejected", did)
		}
	}
}
