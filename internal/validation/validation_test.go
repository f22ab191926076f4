package validation

import (
	"strings"
	"testing"
)

func TestIsValidWalletAddress(t *testing.T) {
	valid := []string{
		"0x00Be915B9dCf56a3CBE739D9B9c202ca692409EC",
		"0x" + strings.Repeat("a", 40),
	}
	for _, addr := range valid {
		if !IsValidWalletAddress(addr) {
			t.Errorf("rejected valid address %s", addr)
		}
	}

	// missing prefix, wrong length, non-hex, upper prefix, whitespace
	invalid := []string{
		"",
		strings.Repeat("a", 40),
		"0x" + strings.Repeat("a", 39),
		"0x" + strings.Repeat("a", 41),
		"0x" + strings.Repeat("g", 40),
		"0X" + strings.Repeat("a", 40),
		" 0x" + strings.Repeat("a", 40),
	}
	for _, addr := range invalid {
		if IsValidWalletAddress(addr) {
			t.Errorf("accepted invalid address %q", addr)
		}
	}
}

func TestIsValidTxHash(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	if !IsValidTxHash(hash) {
		t.Error("rejected bare 64-hex hash")
	}
	if !IsValidTxHash("0x" + hash) {
		t.Error("rejected 0x-prefixed hash")
	}
	if IsValidTxHash(hash[:63]) {
		t.Error("accepted short hash")
	}
	if IsValidTxHash(hash + "0") {
		t.Error("accepted long hash")
	}
	if IsValidTxHash(strings.Repeat("zz", 32)) {
		t.Error("accepted non-hex hash")
	}
}

func TestSanitizeAddress(t *testing.T) {
	got := SanitizeAddress("  " + strings.Repeat("AB", 20) + " ")
	want := "0x" + strings.Repeat("ab", 20)
	if got != want {
		t.Errorf("SanitizeAddress = %q, want %q", got, want)
	}
}

func TestSanitizeString(t *testing.T) {
	got := SanitizeString("  hello\x00world  ", 100)
	if got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("length cap: %q", got)
	}
}
