package fronting

import "testing"

func TestSelectFrontDomainDisabledWhenEmpty(t *testing.T) {
	m := NewMap(nil)
	if _, ok := m.SelectFrontDomain("", "example.com"); ok {
		t.Fatal("empty CDN map must disable fronting")
	}
}

func TestSelectFrontDomainAllowlistBlocksGoogle(t *testing.T) {
	m := NewMap(map[string][]string{"cloudflare": {"cdn1.example.net", "cdn2.example.net"}})
	for _, host := range []string{"google.com", "www.google.com", "accounts.google.com", "youtube.com"} {
		if _, ok := m.SelectFrontDomain("", host); ok {
			t.Errorf("SelectFrontDomain(%q) should be blocked by the no-front allowlist", host)
		}
	}
}

func TestSelectFrontDomainReturnsConfiguredHost(t *testing.T) {
	hosts := map[string]struct{}{"cdn1.example.net": {}, "cdn2.example.net": {}}
	m := NewMap(map[string][]string{"cloudflare": {"cdn1.example.net", "cdn2.example.net"}})
	for i := 0; i < 50; i++ {
		front, ok := m.SelectFrontDomain("", "realsite.example.org")
		if !ok {
			t.Fatal("expected fronting to be enabled")
		}
		if _, known := hosts[front]; !known {
			t.Fatalf("unexpected front host %q", front)
		}
	}
}

func TestSelectFrontDomainUnknownProvider(t *testing.T) {
	m := NewMap(map[string][]string{"cloudflare": {"cdn1.example.net"}})
	if _, ok := m.SelectFrontDomain("not-a-provider", "realsite.example.org"); ok {
		t.Fatal("unknown provider must yield ok=false")
	}
}

func TestIsAllowlistedSuffixMatch(t *testing.T) {
	if !IsAllowlisted("mail.gmail.com") {
		t.Fatal("mail.gmail.com should be allowlisted via the gmail.com suffix")
	}
	if IsAllowlisted("notgoogle.com") {
		t.Fatal("notgoogle.com must not match the google.com suffix")
	}
}
