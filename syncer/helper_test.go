package syncer

import "testing"

func TestIsSafeName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"gh-sync", true},
		{"repo.js", true},
		{"my_repo", true},
		{"Repo-2.0", true},
		{"...", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"../evil", false},
		{"with space", false},
		{"tab\tname", false},
	}
	for _, tt := range tests {
		if got := isSafeName(tt.name); got != tt.want {
			t.Errorf("isSafeName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
