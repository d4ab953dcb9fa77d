package app

import "testing"

func TestLoadConfigDerivesIssuer(t *testing.T) {
	t.Setenv("VERBOSE", "false")
	t.Setenv("KC_ISSUER", "")
	t.Setenv("AUTH_ADDRESS", "kc:8080")
	t.Setenv("KC_REALM", "workstream")

	cfg := loadConfig("no-such.env")
	if cfg.Issuer != "http://kc:8080/realms/workstream" {
		t.Fatalf("issuer = %q", cfg.Issuer)
	}
}

func TestLoadConfigExplicitIssuerWins(t *testing.T) {
	t.Setenv("VERBOSE", "false")
	t.Setenv("KC_ISSUER", "https://auth.example.org/realms/ws")

	cfg := loadConfig("no-such.env")
	if cfg.Issuer != "https://auth.example.org/realms/ws" {
		t.Fatalf("issuer = %q", cfg.Issuer)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Config{Port: "5080"}
	if got := cfg.listenAddr(); got != ":5080" {
		t.Fatalf("addr = %q, want every interface", got)
	}

	cfg.Ip = "127.0.0.1"
	if got := cfg.listenAddr(); got != "127.0.0.1:5080" {
		t.Fatalf("addr = %q", got)
	}
}
