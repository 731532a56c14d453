package models

import "testing"

func TestValidDomain(t *testing.T) {
	valid := []string{
		"example.com",
		"mail.example.co.uk",
		"xn--bcher-kva.example",
		"a.io",
	}
	for _, d := range valid {
		if !ValidDomain(d) {
			t.Errorf("expected %q to be valid", d)
		}
	}

	invalid := []string{
		"",
		"example",
		"-bad.example.com",
		"bad-.example.com",
		"example..com",
		"example.c",
		".example.com",
		"exa mple.com",
	}
	for _, d := range invalid {
		if ValidDomain(d) {
			t.Errorf("expected %q to be invalid", d)
		}
	}
}

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		" Example.COM ": "example.com",
		"example.com.":  "example.com",
		"sales.Example.ORG": "sales.example.org",
	}
	for in, want := range cases {
		if got := NormalizeDomain(in); got != want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidWebhookURL(t *testing.T) {
	if !ValidWebhookURL("https://hook.example/in") {
		t.Error("expected https URL to be valid")
	}
	if !ValidWebhookURL("http://hook.example:8080/in?x=1") {
		t.Error("expected http URL with port and query to be valid")
	}
	if ValidWebhookURL("ftp://hook.example/in") {
		t.Error("expected non-http scheme to be invalid")
	}
	if ValidWebhookURL("not a url") {
		t.Error("expected garbage to be invalid")
	}
	if ValidWebhookURL("/relative/path") {
		t.Error("expected relative URL to be invalid")
	}
}
