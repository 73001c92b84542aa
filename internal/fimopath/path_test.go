package fimopath

import (
	"errors"
	"testing"

	"github.com/nmxmxh/fimod/internal/fimoerr"
)

func TestValidateRelative(t *testing.T) {
	cases := []struct {
		path    string
		wantErr bool
	}{
		{"assets/icon.png", false},
		{"", true},
		{"/etc/passwd", true},
		{"\\windows\\system32", true},
		{"../../etc/passwd", true},
		{"a/../b", false},
	}
	for _, c := range cases {
		err := ValidateRelative(c.path)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateRelative(%q) err=%v, wantErr=%v", c.path, err, c.wantErr)
		}
		if err != nil && !errors.Is(err, fimoerr.New(fimoerr.Malformed, "")) {
			t.Errorf("expected Malformed kind for %q", c.path)
		}
	}
}

func TestResolve(t *testing.T) {
	got := Resolve("/opt/modules/a", "assets/icon.png")
	if got != "/opt/modules/a/assets/icon.png" {
		t.Fatalf("Resolve() = %q", got)
	}
}
